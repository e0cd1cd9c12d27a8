// Package logging provides structured logging utilities with context propagation.
//
// It wraps log/slog with the few helpers the services share: level and
// format selection from the environment, request and trace id enrichment,
// and a logger carried on the context.
//
// Example usage:
//
//	func main() {
//	    logger := logging.NewLogger()
//	    slog.SetDefault(logger)
//	}
//
//	func handleRequest(ctx context.Context) {
//	    logger := logging.WithRequestID(ctx, slog.Default())
//	    logger.Info("synthesizing", slog.String("voice", voice))
//	}
package logging
