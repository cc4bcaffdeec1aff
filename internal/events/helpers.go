package events

import (
	"encoding/json"
	"fmt"
)

// SetPatternThresholdData sets the Data field with PatternThresholdData in a type-safe way.
func (e *Event) SetPatternThresholdData(data PatternThresholdData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert PatternThresholdData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetPatternThresholdData retrieves PatternThresholdData from the Data field.
func (e *Event) GetPatternThresholdData() (*PatternThresholdData, error) {
	var data PatternThresholdData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse PatternThresholdData: %w", err)
	}
	return &data, nil
}

// SetDecayAppliedData sets the Data field with DecayAppliedData in a type-safe way.
func (e *Event) SetDecayAppliedData(data DecayAppliedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert DecayAppliedData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetDecayAppliedData retrieves DecayAppliedData from the Data field.
func (e *Event) GetDecayAppliedData() (*DecayAppliedData, error) {
	var data DecayAppliedData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse DecayAppliedData: %w", err)
	}
	return &data, nil
}

// SetSessionPlannedData sets the Data field with SessionPlannedData in a type-safe way.
func (e *Event) SetSessionPlannedData(data SessionPlannedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert SessionPlannedData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetSessionPlannedData retrieves SessionPlannedData from the Data field.
func (e *Event) GetSessionPlannedData() (*SessionPlannedData, error) {
	var data SessionPlannedData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse SessionPlannedData: %w", err)
	}
	return &data, nil
}

// SetSessionStateChangeData sets the Data field with SessionStateChangeData in a type-safe way.
func (e *Event) SetSessionStateChangeData(data SessionStateChangeData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert SessionStateChangeData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetSessionStateChangeData retrieves SessionStateChangeData from the Data field.
func (e *Event) GetSessionStateChangeData() (*SessionStateChangeData, error) {
	var data SessionStateChangeData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse SessionStateChangeData: %w", err)
	}
	return &data, nil
}

// SetRunStateChangeData sets the Data field with RunStateChangeData in a type-safe way.
func (e *Event) SetRunStateChangeData(data RunStateChangeData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert RunStateChangeData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetRunStateChangeData retrieves RunStateChangeData from the Data field.
func (e *Event) GetRunStateChangeData() (*RunStateChangeData, error) {
	var data RunStateChangeData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse RunStateChangeData: %w", err)
	}
	return &data, nil
}

// SetBudgetExhaustedData sets the Data field with BudgetExhaustedData in a type-safe way.
func (e *Event) SetBudgetExhaustedData(data BudgetExhaustedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert BudgetExhaustedData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetBudgetExhaustedData retrieves BudgetExhaustedData from the Data field.
func (e *Event) GetBudgetExhaustedData() (*BudgetExhaustedData, error) {
	var data BudgetExhaustedData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse BudgetExhaustedData: %w", err)
	}
	return &data, nil
}

// SetDiscoveryCuratedData sets the Data field with DiscoveryCuratedData in a type-safe way.
func (e *Event) SetDiscoveryCuratedData(data DiscoveryCuratedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert DiscoveryCuratedData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetDiscoveryCuratedData retrieves DiscoveryCuratedData from the Data field.
func (e *Event) GetDiscoveryCuratedData() (*DiscoveryCuratedData, error) {
	var data DiscoveryCuratedData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse DiscoveryCuratedData: %w", err)
	}
	return &data, nil
}

// SetDiscoveryDeduplicatedData sets the Data field with DiscoveryDeduplicatedData in a type-safe way.
func (e *Event) SetDiscoveryDeduplicatedData(data DiscoveryDeduplicatedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert DiscoveryDeduplicatedData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetDiscoveryDeduplicatedData retrieves DiscoveryDeduplicatedData from the Data field.
func (e *Event) GetDiscoveryDeduplicatedData() (*DiscoveryDeduplicatedData, error) {
	var data DiscoveryDeduplicatedData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse DiscoveryDeduplicatedData: %w", err)
	}
	return &data, nil
}

// SetFeedbackRecordedData sets the Data field with FeedbackRecordedData in a type-safe way.
func (e *Event) SetFeedbackRecordedData(data FeedbackRecordedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert FeedbackRecordedData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetFeedbackRecordedData retrieves FeedbackRecordedData from the Data field.
func (e *Event) GetFeedbackRecordedData() (*FeedbackRecordedData, error) {
	var data FeedbackRecordedData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse FeedbackRecordedData: %w", err)
	}
	return &data, nil
}

// SetEventCleanupCompletedData sets the Data field with EventCleanupCompletedData in a type-safe way.
func (e *Event) SetEventCleanupCompletedData(data EventCleanupCompletedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert EventCleanupCompletedData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetEventCleanupCompletedData retrieves EventCleanupCompletedData from the Data field.
func (e *Event) GetEventCleanupCompletedData() (*EventCleanupCompletedData, error) {
	var data EventCleanupCompletedData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse EventCleanupCompletedData: %w", err)
	}
	return &data, nil
}

// SetCircuitBreakerStateChangeData sets the Data field with CircuitBreakerStateChangeData in a type-safe way.
func (e *Event) SetCircuitBreakerStateChangeData(data CircuitBreakerStateChangeData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert CircuitBreakerStateChangeData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetCircuitBreakerStateChangeData retrieves CircuitBreakerStateChangeData from the Data field.
func (e *Event) GetCircuitBreakerStateChangeData() (*CircuitBreakerStateChangeData, error) {
	var data CircuitBreakerStateChangeData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse CircuitBreakerStateChangeData: %w", err)
	}
	return &data, nil
}

// SetObservationBatchData sets the Data field with ObservationBatchData in a type-safe way.
func (e *Event) SetObservationBatchData(data ObservationBatchData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert ObservationBatchData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetObservationBatchData retrieves ObservationBatchData from the Data field.
func (e *Event) GetObservationBatchData() (*ObservationBatchData, error) {
	var data ObservationBatchData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse ObservationBatchData: %w", err)
	}
	return &data, nil
}

// SetSandboxLifecycleData sets the Data field with SandboxLifecycleData in a type-safe way.
func (e *Event) SetSandboxLifecycleData(data SandboxLifecycleData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert SandboxLifecycleData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetSandboxLifecycleData retrieves SandboxLifecycleData from the Data field.
func (e *Event) GetSandboxLifecycleData() (*SandboxLifecycleData, error) {
	var data SandboxLifecycleData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse SandboxLifecycleData: %w", err)
	}
	return &data, nil
}

// SetSubstrateCheckFailedData sets the Data field with SubstrateCheckFailedData in a type-safe way.
func (e *Event) SetSubstrateCheckFailedData(data SubstrateCheckFailedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert SubstrateCheckFailedData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetSubstrateCheckFailedData retrieves SubstrateCheckFailedData from the Data field.
func (e *Event) GetSubstrateCheckFailedData() (*SubstrateCheckFailedData, error) {
	var data SubstrateCheckFailedData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse SubstrateCheckFailedData: %w", err)
	}
	return &data, nil
}

// SetRetentionCompletedData sets the Data field with RetentionCompletedData in a type-safe way.
func (e *Event) SetRetentionCompletedData(data RetentionCompletedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert RetentionCompletedData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetRetentionCompletedData retrieves RetentionCompletedData from the Data field.
func (e *Event) GetRetentionCompletedData() (*RetentionCompletedData, error) {
	var data RetentionCompletedData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse RetentionCompletedData: %w", err)
	}
	return &data, nil
}

// SetCostAlertData sets the Data field with CostAlertData in a type-safe way.
func (e *Event) SetCostAlertData(data CostAlertData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert CostAlertData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetCostAlertData retrieves CostAlertData from the Data field.
func (e *Event) GetCostAlertData() (*CostAlertData, error) {
	var data CostAlertData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse CostAlertData: %w", err)
	}
	return &data, nil
}

// SetGenerationRetryData sets the Data field with GenerationRetryData in a type-safe way.
func (e *Event) SetGenerationRetryData(data GenerationRetryData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert GenerationRetryData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetGenerationRetryData retrieves GenerationRetryData from the Data field.
func (e *Event) GetGenerationRetryData() (*GenerationRetryData, error) {
	var data GenerationRetryData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse GenerationRetryData: %w", err)
	}
	return &data, nil
}

// SetScheduleWindowData sets the Data field with ScheduleWindowData in a type-safe way.
func (e *Event) SetScheduleWindowData(data ScheduleWindowData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert ScheduleWindowData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetScheduleWindowData retrieves ScheduleWindowData from the Data field.
func (e *Event) GetScheduleWindowData() (*ScheduleWindowData, error) {
	var data ScheduleWindowData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse ScheduleWindowData: %w", err)
	}
	return &data, nil
}

// structToMap converts a struct to map[string]interface{} using JSON marshaling.
func structToMap(data interface{}) (map[string]interface{}, error) {
	bytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// mapToStruct converts a map[string]interface{} to a struct using JSON unmarshaling.
func mapToStruct(dataMap map[string]interface{}, target interface{}) error {
	bytes, err := json.Marshal(dataMap)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, target)
}
