package logger

// LoggerInterface is the logging surface the data packages depend on.
// *Logger satisfies it; tests usually pass Nop() or an observed logger.
type LoggerInterface interface {
	Debugw(string, ...any)
	Infow(string, ...any)
	Warnw(string, ...any)
	Errorw(string, ...any)

	With(...any) LoggerInterface
	SafeSync()
}
