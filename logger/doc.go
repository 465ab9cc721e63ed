// Package logger is a thin zerolog wrapper shared by every playurl component.
//
// Components receive a *Logger in their constructor and tag themselves:
//
//	log := logger.New(&cfg.Logging, "playurld").WithComponent("signedurl")
//	log.Warn("access denied", logger.Fields(logger.FieldResourceID, id, logger.FieldCallerID, caller))
package logger
