package analytics

import "sync"

type DataCollectorConfig struct {
	FileName      string
	CollectorType DataCollectorType
}

type DataCollectorType string

const LOG_FILE_DATA_COLLECTOR DataCollectorType = "LOG_FILE_DATA_COLLECTOR"
const NOOP_DATA_COLLECTOR DataCollectorType = "NOOP_DATA_COLLECTOR"

// FlowDataCollector receives execution events of flow contexts.
type FlowDataCollector interface {
	RecordNodeExecuted(flowId string, conversationId string, nodeId string, nodeType string)
	RecordFlowCompleted(flowId string, conversationId string)
	RecordFlowFailed(flowId string, conversationId string, nodeId string, reason string)
	RecordCallRetry(flowId string, conversationId string, nodeId string, attempt int, reason string)
}

var (
	mu            sync.RWMutex
	flowCollector FlowDataCollector = noopCollector{}
)

func InitDataCollector(config DataCollectorConfig) error {
	switch config.CollectorType {
	case LOG_FILE_DATA_COLLECTOR:
		c, err := NewLogFileDataCollector(config.FileName)
		if err != nil {
			return err
		}
		SetDataCollector(c)
	default:
		SetDataCollector(noopCollector{})
	}
	return nil
}

func SetDataCollector(c FlowDataCollector) {
	mu.Lock()
	defer mu.Unlock()
	flowCollector = c
}

func collector() FlowDataCollector {
	mu.RLock()
	defer mu.RUnlock()
	return flowCollector
}

func RecordNodeExecuted(flowId string, conversationId string, nodeId string, nodeType string) {
	recordNode(nodeType)
	collector().RecordNodeExecuted(flowId, conversationId, nodeId, nodeType)
}

func RecordFlowCompleted(flowId string, conversationId string) {
	recordOutcome(OUTCOME_COMPLETED)
	collector().RecordFlowCompleted(flowId, conversationId)
}

func RecordFlowFailed(flowId string, conversationId string, nodeId string, reason string) {
	recordOutcome(OUTCOME_FAILED)
	collector().RecordFlowFailed(flowId, conversationId, nodeId, reason)
}

func RecordCallRetry(flowId string, conversationId string, nodeId string, attempt int, reason string) {
	recordRetry()
	collector().RecordCallRetry(flowId, conversationId, nodeId, attempt, reason)
}

type noopCollector struct{}

func (noopCollector) RecordNodeExecuted(string, string, string, string)   {}
func (noopCollector) RecordFlowCompleted(string, string)                  {}
func (noopCollector) RecordFlowFailed(string, string, string, string)     {}
func (noopCollector) RecordCallRetry(string, string, string, int, string) {}
