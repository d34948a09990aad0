package xmlrpc

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/inkpress/internal/logging"
)

const defaultMaxBody = 10 << 20

// Handler implements one remote method. params have already been coerced to
// the declared signature types.
type Handler func(ctx context.Context, params []any) (any, error)

// Method is one entry of the method table.
type Method struct {
	Handler Handler
	// Signatures lists accepted shapes: return type first, then parameter
	// types (int, boolean, string, double, dateTime.iso8601, base64, struct,
	// array, any). An empty list disables checking.
	Signatures [][]string
	Help       string
}

// Observer is told about every dispatched call; err is nil on success.
type Observer func(method string, err error)

// Config controls the HTTP surface of the server.
type Config struct {
	MaxBodyBytes int64
	Observer     Observer
}

// Server dispatches calls through a method table.
type Server struct {
	mu      sync.RWMutex
	methods map[string]Method
	maxBody int64
	observe Observer
	logger  *zap.Logger
}

type requestKey struct{}

// WithRequest stores the HTTP request in ctx for handlers that need it.
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, requestKey{}, r)
}

// RequestFrom returns the HTTP request that carried the call, if any.
func RequestFrom(ctx context.Context) (*http.Request, bool) {
	r, ok := ctx.Value(requestKey{}).(*http.Request)
	return r, ok
}

// NewServer creates a server with the system.* introspection methods.
func NewServer(cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBody
	}
	s := &Server{
		methods: make(map[string]Method),
		maxBody: cfg.MaxBodyBytes,
		observe: cfg.Observer,
		logger:  logger,
	}
	s.registerSystem()
	return s
}

// Register adds or replaces a method.
func (s *Server) Register(name string, m Method) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[name] = m
}

// Unregister removes a method.
func (s *Server) Unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.methods, name)
}

// Methods lists registered method names alphabetically.
func (s *Server) Methods() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) lookup(name string) (Method, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.methods[name]
	return m, ok
}

// Invoke type-checks params against the method signatures and runs it.
// Errors that are not *Fault are reported as FaultInternal.
func (s *Server) Invoke(ctx context.Context, method string, params []any) (any, error) {
	result, err := s.invoke(ctx, method, params)
	if s.observe != nil {
		s.observe(method, err)
	}
	return result, err
}

func (s *Server) invoke(ctx context.Context, method string, params []any) (any, error) {
	m, ok := s.lookup(method)
	if !ok {
		return nil, NewFault(FaultNoSuchMethod, "server error. requested method %s does not exist.", method)
	}
	coerced, err := checkParams(m.Signatures, params)
	if err != nil {
		return nil, err
	}
	result, err := m.Handler(ctx, coerced)
	if err != nil {
		var f *Fault
		if errors.As(err, &f) {
			return nil, f
		}
		logging.FromContext(ctx, s.logger).Error("xmlrpc method failed", zap.String("method", method), zap.Error(err))
		return nil, NewFault(FaultInternal, "%s", err.Error())
	}
	return result, nil
}

// ServeHTTP accepts POSTed methodCall documents.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "XML-RPC server accepts POST requests only.", http.StatusMethodNotAllowed)
		return
	}
	body := http.MaxBytesReader(w, r.Body, s.maxBody)
	start := time.Now()

	var buf bytes.Buffer
	call, err := DecodeCall(body)
	if err != nil {
		logging.FromContext(r.Context(), s.logger).Warn("xmlrpc parse error", zap.Error(err))
		_ = EncodeFault(&buf, NewFault(FaultParse, "parse error. not well formed"))
	} else {
		result, err := s.Invoke(WithRequest(r.Context(), r), call.Method, call.Params)
		var f *Fault
		switch {
		case errors.As(err, &f):
			_ = EncodeFault(&buf, f)
		case err != nil:
			_ = EncodeFault(&buf, NewFault(FaultInternal, "%s", err.Error()))
		default:
			if encErr := EncodeResponse(&buf, result); encErr != nil {
				s.logger.Error("xmlrpc encode failed", zap.String("method", call.Method), zap.Error(encErr))
				buf.Reset()
				_ = EncodeFault(&buf, NewFault(FaultInternal, "unable to encode response"))
			}
		}
		s.logger.Debug("xmlrpc call",
			zap.String("method", call.Method),
			zap.Bool("fault", err != nil),
			zap.Duration("duration", time.Since(start)),
		)
	}

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

func checkParams(signatures [][]string, params []any) ([]any, error) {
	if len(signatures) == 0 {
		return params, nil
	}
	countMatched := false
	for _, sig := range signatures {
		if len(sig)-1 != len(params) {
			continue
		}
		countMatched = true
		out := make([]any, len(params))
		ok := true
		for i, p := range params {
			v, good := coerce(sig[i+1], p)
			if !good {
				ok = false
				break
			}
			out[i] = v
		}
		if ok {
			return out, nil
		}
	}
	if !countMatched {
		return nil, NewFault(FaultInvalidParams, "server error. wrong number of method parameters")
	}
	return nil, NewFault(FaultInvalidParams, "server error. invalid method parameters")
}

// coerce converts v to the declared type when a lossless conversion exists.
func coerce(typ string, v any) (any, bool) {
	switch typ {
	case "", "any", "mixed":
		return v, true
	case "int", "i4":
		switch t := v.(type) {
		case int:
			return t, true
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(t))
			return n, err == nil
		}
	case "boolean":
		switch t := v.(type) {
		case bool:
			return t, true
		case int:
			return t != 0, t == 0 || t == 1
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(t))
			return b, err == nil
		}
	case "string":
		switch t := v.(type) {
		case string:
			return t, true
		case int:
			return strconv.Itoa(t), true
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64), true
		case nil:
			return "", true
		}
	case "double":
		switch t := v.(type) {
		case float64:
			return t, true
		case int:
			return float64(t), true
		}
	case "dateTime.iso8601":
		switch t := v.(type) {
		case time.Time:
			return t, true
		case string:
			d, err := ParseDateTime(t)
			return d, err == nil
		}
	case "base64":
		switch t := v.(type) {
		case []byte:
			return t, true
		case string:
			return []byte(t), true
		}
	case "struct":
		switch t := v.(type) {
		case map[string]any:
			return t, true
		case []any:
			if len(t) == 0 {
				return map[string]any{}, true
			}
		}
	case "array":
		if t, ok := v.([]any); ok {
			return t, true
		}
	}
	return nil, false
}

func (s *Server) registerSystem() {
	s.Register("system.listMethods", Method{
		Handler: func(context.Context, []any) (any, error) {
			return s.Methods(), nil
		},
		Signatures: [][]string{{"array"}},
		Help:       "Returns a list of the methods the server supports.",
	})
	s.Register("system.methodSignature", Method{
		Handler: func(_ context.Context, p []any) (any, error) {
			m, ok := s.lookup(p[0].(string))
			if !ok {
				return nil, NewFault(FaultNoSuchMethod, "server error. requested method %s does not exist.", p[0])
			}
			if len(m.Signatures) == 0 {
				return "undef", nil
			}
			return m.Signatures, nil
		},
		Signatures: [][]string{{"array", "string"}},
		Help:       "Returns an array of possible signatures for the method.",
	})
	s.Register("system.methodHelp", Method{
		Handler: func(_ context.Context, p []any) (any, error) {
			m, ok := s.lookup(p[0].(string))
			if !ok {
				return nil, NewFault(FaultNoSuchMethod, "server error. requested method %s does not exist.", p[0])
			}
			return m.Help, nil
		},
		Signatures: [][]string{{"string", "string"}},
		Help:       "Returns a documentation string for the method.",
	})
	s.Register("system.getCapabilities", Method{
		Handler: func(context.Context, []any) (any, error) {
			return capabilities(), nil
		},
		Signatures: [][]string{{"struct"}},
		Help:       "Returns a struct describing the specifications the server implements.",
	})
	s.Register("system.multicall", Method{
		Handler:    s.multicall,
		Signatures: [][]string{{"array", "array"}},
		Help:       "Boxcars multiple calls into one request.",
	})
}

func capabilities() map[string]any {
	spec := func(url string, version int) map[string]any {
		return map[string]any{"specUrl": url, "specVersion": version}
	}
	return map[string]any{
		"xmlrpc":           spec("http://www.xmlrpc.com/spec", 1),
		"faults_interop":   spec("http://xmlrpc-epi.sourceforge.net/specs/rfc.fault_codes.php", 20010516),
		"introspection":    spec("http://xmlrpc-c.sourceforge.net/introspection.html", 1),
		"system.multicall": spec("http://www.xmlrpc.com/discuss/msgReader$1208", 1),
	}
}

func (s *Server) multicall(ctx context.Context, p []any) (any, error) {
	calls := p[0].([]any)
	results := make([]any, 0, len(calls))
	for _, raw := range calls {
		results = append(results, s.boxcar(ctx, raw))
	}
	return results, nil
}

func (s *Server) boxcar(ctx context.Context, raw any) any {
	call, ok := raw.(map[string]any)
	if !ok {
		return NewFault(FaultInvalidParams, "multicall entries must be structs").value()
	}
	name, _ := call["methodName"].(string)
	if name == "" {
		return NewFault(FaultInvalidParams, "multicall entry is missing methodName").value()
	}
	if name == "system.multicall" {
		return NewFault(FaultInvalidRequest, "recursive system.multicall forbidden").value()
	}
	params, _ := call["params"].([]any)
	result, err := s.Invoke(ctx, name, params)
	if err != nil {
		var f *Fault
		if !errors.As(err, &f) {
			f = NewFault(FaultInternal, "%s", err.Error())
		}
		return f.value()
	}
	return []any{result}
}

