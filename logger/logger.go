// Package logger provides adapters for popular logger libraries to work with idxtree's Logger interface.
//
// Note that the standard library's slog.Logger already implements idxtree.Logger directly.
//
// Example with zap:
//
//	zapLogger, _ := zap.NewProduction()
//
//	tree, err := idxtree.OpenFile("index.db", idxtree.WithLogger(logger.NewZap(zapLogger)))
//	if err != nil {
//	    panic(err)
//	}
//	defer tree.Close()
package logger
