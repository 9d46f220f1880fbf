package core

// Logger is the application logger.
// args may carry an error, a map[string]interface{} payload and the acting Caller.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

type nopLogger struct{}

// NopLogger discards everything but Fatal, which panics.
var NopLogger Logger = &nopLogger{}

func (*nopLogger) Debug(string, ...interface{}) {}
func (*nopLogger) Info(string, ...interface{})  {}
func (*nopLogger) Warn(string, ...interface{})  {}
func (*nopLogger) Error(string, ...interface{}) {}
func (*nopLogger) Fatal(msg string, _ ...interface{}) {
	panic(msg)
}
