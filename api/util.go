package api

import "log"

// NewUtilService builds the service-flags endpoint: GET /util/<flag>
// reads one flag, POST /util sets any number of them from a flag-to-value
// map. Only throttle is predefined.
func NewUtilService() *Service {
	s := NewService()
	s.Post("*", utilSet)
	s.Get(":service", utilGet)
	return s
}

func utilGet(ctx *Context, req *Request) (any, error) {
	value, ok := ctx.Util.Get(ctx.Params["service"])
	if !ok {
		return nil, nil
	}
	return value, nil
}

func utilSet(ctx *Context, req *Request) (any, error) {
	for name, value := range req.Body {
		on := truthyFlag(value)
		ctx.Util.Set(name, on)
		if on {
			log.Printf("INFO: %s enabled", name)
		} else {
			log.Printf("INFO: %s disabled", name)
		}
	}
	return "", nil
}

func truthyFlag(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	case nil:
		return false
	}
	return true
}
