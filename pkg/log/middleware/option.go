package middleware

type grpcConfig struct {
	// unary methods whose request parameters are kept out of the log
	noLogUnaryRequestParamMethods map[string]bool
}

type InterceptorOption func(*grpcConfig)

func defaultGRPCConfig() *grpcConfig {
	return &grpcConfig{
		noLogUnaryRequestParamMethods: make(map[string]bool),
	}
}

// NoUnaryRequestParamsLog keeps the request parameters of the given unary
// methods out of the log.
func NoUnaryRequestParamsLog(methods ...string) InterceptorOption {
	return func(c *grpcConfig) {
		for _, m := range methods {
			c.noLogUnaryRequestParamMethods[m] = true
		}
	}
}
