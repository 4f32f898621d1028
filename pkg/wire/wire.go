// Package wire defines the frame contract between llmws and model servers.
//
// A server speaks newline-delimited JSON over a WebSocket connection. Every
// frame is a single JSON object carrying a "type" discriminator. One exchange
// looks like:
//
//	client -> {}                                        (handshake, optionally {"session_id":"..."})
//	server -> {"type":"welcome","session_id":"abc"}
//	client -> {"type":"inference","prompt":{...},"config":{...}}
//	server -> {"type":"start","tokens_in":104,"max_tokens":512}
//	server -> {"type":"token","data":"Hel"}
//	server -> {"type":"token","data":"lo"}
//	server -> {"type":"done","total_tokens":110}
//
// A failed exchange ends with {"type":"error","message":"..."} instead.
// Servers may attach extra fields to any frame; clients must ignore frame
// types they do not recognize.
package wire

import "encoding/json"

// Frame types a server may send during one exchange.
const (
	TypeWelcome = "welcome" // handshake ack, may name the session and model
	TypeStart   = "start"   // generation started, carries token accounting
	TypeToken   = "token"   // one text delta
	TypeDone    = "done"    // stream completed cleanly
	TypeError   = "error"   // server-side failure, terminal
)

// Frame is one decoded inbound frame. Servers attach vendor fields freely, so
// frames stay map-shaped; the accessors tolerate absent or oddly-typed values
// instead of failing.
type Frame map[string]any

// Type returns the frame's type discriminator, or "" when absent.
func (f Frame) Type() string {
	return f.Str("type")
}

// Str returns the string value under key, or "" when absent or not a string.
func (f Frame) Str(key string) string {
	s, _ := f[key].(string)
	return s
}

// Strs returns the string items of the list under key. Missing keys,
// non-list values, and non-string items are skipped.
func (f Frame) Strs(key string) []string {
	items, _ := f[key].([]any)
	var out []string
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Int returns the integer value under key. JSON numbers arrive as float64;
// int is accepted too so frames built in code behave the same.
func (f Frame) Int(key string) (int, bool) {
	switch v := f[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

// DecodeFrame parses one newline-delimited line into a Frame.
func DecodeFrame(line []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(line, &f); err != nil {
		return nil, err
	}
	return f, nil
}

// EncodeJSON marshals v as a single newline-terminated frame ready to write.
func EncodeJSON(v any) ([]byte, error) {
	line, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(line, '\n'), nil
}

// Handshake opens or resumes a session. The zero value encodes as {} and
// starts a fresh session.
type Handshake struct {
	SessionID string `json:"session_id,omitempty"`
}

// Prompt is the two-part prompt of an inference request.
type Prompt struct {
	System string `json:"system"`
	User   string `json:"user"`
}

// Media is one attachment on an inference request. Data carries bare base64
// with no data-URI prefix.
type Media struct {
	Type string `json:"type"`
	Data string `json:"data"`
	Name string `json:"name"`
}

// InferenceRequest asks the server to run one generation.
type InferenceRequest struct {
	Type   string            `json:"type"`
	Prompt Prompt            `json:"prompt"`
	Media  []Media           `json:"media,omitempty"`
	Config *GenerationConfig `json:"config,omitempty"`
}

// NewInferenceRequest builds an InferenceRequest with the type field set.
func NewInferenceRequest(system, user string, media []Media, cfg *GenerationConfig) *InferenceRequest {
	return &InferenceRequest{
		Type:   "inference",
		Prompt: Prompt{System: system, User: user},
		Media:  media,
		Config: cfg,
	}
}

// GenerationConfig carries the optional generation knobs. Nil fields mean
// "let the server default". On the wire the server reads snake_case keys;
// configuration files may use either snake_case or camelCase spellings.
type GenerationConfig struct {
	MaxNewTokens      *int     `json:"max_new_tokens,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty"`
	TopP              *float64 `json:"top_p,omitempty"`
	TopK              *int     `json:"top_k,omitempty"`
	RepetitionPenalty *float64 `json:"repetition_penalty,omitempty"`
	DoSample          *bool    `json:"do_sample,omitempty"`
}

// UnmarshalJSON accepts both snake_case and camelCase key spellings, with the
// snake_case key winning when both are present.
func (g *GenerationConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	pick := func(keys ...string) json.RawMessage {
		for _, k := range keys {
			if v, ok := raw[k]; ok {
				return v
			}
		}
		return nil
	}
	decode := func(v json.RawMessage, dst any) error {
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, dst)
	}
	if err := decode(pick("max_new_tokens", "maxNewTokens"), &g.MaxNewTokens); err != nil {
		return err
	}
	if err := decode(pick("temperature"), &g.Temperature); err != nil {
		return err
	}
	if err := decode(pick("top_p", "topP"), &g.TopP); err != nil {
		return err
	}
	if err := decode(pick("top_k", "topK"), &g.TopK); err != nil {
		return err
	}
	if err := decode(pick("repetition_penalty", "repetitionPenalty"), &g.RepetitionPenalty); err != nil {
		return err
	}
	return decode(pick("do_sample", "doSample"), &g.DoSample)
}

// Merged returns a copy of g with every non-nil field of over applied on top.
// Either side may be nil.
func (g *GenerationConfig) Merged(over *GenerationConfig) *GenerationConfig {
	if g == nil && over == nil {
		return nil
	}
	out := GenerationConfig{}
	if g != nil {
		out = *g
	}
	if over != nil {
		if over.MaxNewTokens != nil {
			out.MaxNewTokens = over.MaxNewTokens
		}
		if over.Temperature != nil {
			out.Temperature = over.Temperature
		}
		if over.TopP != nil {
			out.TopP = over.TopP
		}
		if over.TopK != nil {
			out.TopK = over.TopK
		}
		if over.RepetitionPenalty != nil {
			out.RepetitionPenalty = over.RepetitionPenalty
		}
		if over.DoSample != nil {
			out.DoSample = over.DoSample
		}
	}
	return &out
}
