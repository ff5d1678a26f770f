package analytics

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _ FlowDataCollector = new(LogFileDataCollector)

type LogFileDataCollector struct {
	fileName string
	logger   *zap.Logger
}

func NewLogFileDataCollector(fileName string) (*LogFileDataCollector, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.StacktraceKey = ""
	fileEncoder := zapcore.NewJSONEncoder(encoderConfig)
	logFile, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(fileEncoder, zapcore.AddSync(logFile), zapcore.InfoLevel)
	return &LogFileDataCollector{
		fileName: fileName,
		logger:   zap.New(core),
	}, nil
}

func (lc *LogFileDataCollector) RecordNodeExecuted(flowId string, conversationId string, nodeId string, nodeType string) {
	lc.logger.Info("node", zap.String("flowId", flowId), zap.String("conversationId", conversationId), zap.String("nodeId", nodeId), zap.String("nodeType", nodeType))
}

func (lc *LogFileDataCollector) RecordFlowCompleted(flowId string, conversationId string) {
	lc.logger.Info("completed", zap.String("flowId", flowId), zap.String("conversationId", conversationId))
}

func (lc *LogFileDataCollector) RecordFlowFailed(flowId string, conversationId string, nodeId string, reason string) {
	lc.logger.Info("failed", zap.String("flowId", flowId), zap.String("conversationId", conversationId), zap.String("nodeId", nodeId), zap.String("reason", reason))
}

func (lc *LogFileDataCollector) RecordCallRetry(flowId string, conversationId string, nodeId string, attempt int, reason string) {
	lc.logger.Info("retry", zap.String("flowId", flowId), zap.String("conversationId", conversationId), zap.String("nodeId", nodeId), zap.Int("attempt", attempt), zap.String("reason", reason))
}

func (lc *LogFileDataCollector) Sync() error {
	return lc.logger.Sync()
}
