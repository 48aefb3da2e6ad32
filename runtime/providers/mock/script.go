// Package mock provides scripted providers for the barista runtime.
//
// The engine, recognizer, synthesizer, end-of-turn model and speech channel
// here are deterministic: the same script and the same audio always produce
// the same conversation. They back the orchestrator tests and the CLI demo,
// and a Script can be loaded from YAML so scenarios live next to the config.
package mock

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AltairaLabs/voicebarista/runtime/order"
)

// Script is the YAML form of a scripted conversation.
type Script struct {
	Engine EngineScript `yaml:"engine"`
	STT    STTScript    `yaml:"stt"`
	TTS    TTSScript    `yaml:"tts"`
	EOT    EOTScript    `yaml:"eot"`
}

// EngineScript configures the rule-based Engine.
type EngineScript struct {
	// Name reported as the llm provider (default "mock").
	Name string `yaml:"name"`

	// Greeting is spoken when the agent talks first.
	Greeting string `yaml:"greeting"`

	// DefaultResponse answers user text no rule matched.
	DefaultResponse string `yaml:"default_response"`

	// Rules are tried in order against each user turn; the first match wins.
	Rules []Rule `yaml:"rules"`

	// AfterSave is spoken after a successful save_order result.
	AfterSave string `yaml:"after_save"`

	// AfterError is spoken after any other save_order result.
	AfterError string `yaml:"after_error"`

	// ChunkDelay is the pause between streamed words.
	ChunkDelay time.Duration `yaml:"chunk_delay"`
}

// Rule maps user text to a response.
//
// Say may contain {summary}, replaced by the order read-back after Update is
// applied, and {missing}, replaced by the fields still needed.
type Rule struct {
	// When is a case-insensitive substring of the user text. Empty matches anything.
	When string `yaml:"when"`

	// Phase restricts the rule to one dialogue phase (e.g. "awaiting_confirmation").
	Phase string `yaml:"phase"`

	Say      string        `yaml:"say"`
	Update   *UpdateScript `yaml:"update"`
	ReadBack bool          `yaml:"read_back"`
	End      bool          `yaml:"end"`

	// Save turns the response into a save_order call built from the draft.
	Save bool `yaml:"save"`

	// SaveArgs overrides the arguments of the save_order call verbatim.
	SaveArgs string `yaml:"save_args"`

	// Fail makes the generation fail with this message.
	Fail string `yaml:"fail"`
}

// UpdateScript is the YAML form of order.Update.
type UpdateScript struct {
	DrinkType  string   `yaml:"drink_type"`
	Size       string   `yaml:"size"`
	Milk       string   `yaml:"milk"`
	Extras     []string `yaml:"extras"`
	ExtrasNone bool     `yaml:"extras_none"`
	Name       string   `yaml:"name"`
}

// OrderUpdate converts the script to an order.Update. Empty strings are
// left out rather than sent as clears.
func (u *UpdateScript) OrderUpdate() *order.Update {
	if u == nil {
		return nil
	}
	out := &order.Update{ExtrasNone: u.ExtrasNone}
	set := func(v string) *string {
		if v == "" {
			return nil
		}
		return &v
	}
	out.DrinkType = set(u.DrinkType)
	out.Size = set(u.Size)
	out.Milk = set(u.Milk)
	out.Name = set(u.Name)
	if len(u.Extras) > 0 {
		out.Extras = append([]string(nil), u.Extras...)
	}
	return out
}

// STTScript configures the scripted recognizer.
type STTScript struct {
	// Utterances are returned in order, one per detected stretch of speech.
	Utterances []string `yaml:"utterances"`

	// FailAfter ends the first stream with a retryable error after this many
	// utterances. Zero never fails.
	FailAfter int `yaml:"fail_after"`
}

// TTSScript configures the scripted synthesizer.
type TTSScript struct {
	// MsPerChar is how much silence each character of text produces (default 10ms).
	MsPerChar int `yaml:"ms_per_char"`

	// ChunkMs is the size of each emitted chunk (default 40ms).
	ChunkMs int `yaml:"chunk_ms"`

	// FailOn fails synthesis of any text containing this substring.
	FailOn string `yaml:"fail_on"`
}

// EOTScript configures the fixed end-of-turn model.
type EOTScript struct {
	Probability float64       `yaml:"probability"`
	Delay       time.Duration `yaml:"delay"`
}

// LoadScript reads a Script from a YAML file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("reading mock script: %w", err)
	}
	s, err := ParseScript(data)
	if err != nil {
		return nil, fmt.Errorf("parsing mock script %s: %w", path, err)
	}
	return s, nil
}

// ParseScript decodes a Script from YAML.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	for i, r := range s.Engine.Rules {
		if r.Say == "" && !r.Save && r.SaveArgs == "" && r.Fail == "" {
			return nil, fmt.Errorf("rule %d (%q) has nothing to say or do", i, r.When)
		}
	}
	return &s, nil
}

// DefaultScript is a complete single-order conversation with Sam.
func DefaultScript() *Script {
	return &Script{
		Engine: EngineScript{
			Greeting:        "Hi, welcome to Guitarbucks! What can I get you today?",
			DefaultResponse: "Sorry, could you say that again?",
			AfterSave:       "Your order is in. Would you like another drink?",
			AfterError:      "Sorry, I couldn't put that order through. Shall I try again?",
			Rules: []Rule{
				{
					When:   "latte",
					Say:    "A latte. What size, and which milk?",
					Update: &UpdateScript{DrinkType: "Latte"},
				},
				{
					When:   "medium",
					Say:    "Any extras?",
					Update: &UpdateScript{Size: "Medium", Milk: "Oat"},
				},
				{
					When:   "vanilla",
					Say:    "And what name is it for?",
					Update: &UpdateScript{Extras: []string{"Vanilla syrup"}},
				},
				{
					When:     "sam",
					Say:      "So that's a {summary}. Is that right?",
					Update:   &UpdateScript{Name: "Sam"},
					ReadBack: true,
				},
				{When: "yes", Phase: "awaiting_confirmation", Save: true},
				{When: "no", Phase: "offer_another", Say: "Thanks, enjoy your coffee!", End: true},
			},
		},
		STT: STTScript{Utterances: []string{
			"Can I get a latte",
			"Medium with oat milk",
			"Vanilla syrup please",
			"It's for Sam",
			"Yes that's right",
			"No thanks",
		}},
		EOT: EOTScript{Probability: 0.9},
	}
}
