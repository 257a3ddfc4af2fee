package logforward

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapSink is the default Sink: it routes each line to a *zap.Logger at a
// fixed, configurable severity, tagging it with the guest stream name
// (stdout/stderr) so operators can tell the two apart.
type ZapSink struct {
	logger *zap.Logger
	level  zapcore.Level
	stream string
}

// NewZapSink builds a Sink that logs every forwarded line from logger at
// level, tagged with stream (e.g. "stdout" or "stderr").
func NewZapSink(logger *zap.Logger, level zapcore.Level, stream string) *ZapSink {
	return &ZapSink{logger: logger, level: level, stream: stream}
}

// Log implements Sink.
func (z *ZapSink) Log(line []byte) {
	ce := z.logger.Check(z.level, "guest log")
	if ce == nil {
		return
	}
	ce.Write(zap.String("stream", z.stream), zap.ByteString("line", line))
}
