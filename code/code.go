// Package code pulls fenced code blocks out of model replies. The Extractor
// stage emits one tool-role message per block so downstream stages (an
// executor, a parser, an event node) can consume the code separately from
// the prose around it.
package code

import (
	"context"
	"strings"

	"github.com/hupe1980/promptchain/core"
	"github.com/hupe1980/promptchain/logging"
)

const fence = "```"

// Block is one fenced code block.
type Block struct {
	Language string `json:"language"` // info string after the opening fence, may be empty
	Code     string `json:"code"`
}

// Extract returns the fenced blocks of text in order of appearance. A block
// without a closing fence is ignored.
func Extract(text string) []Block {
	var (
		blocks []Block
		lang   string
		body   []string
		open   bool
	)
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, fence) {
			if open {
				body = append(body, line)
			}
			continue
		}
		if open {
			blocks = append(blocks, Block{Language: lang, Code: strings.Join(body, "\n")})
			open, body = false, nil
			continue
		}
		open = true
		lang = ""
		if fields := strings.Fields(strings.TrimPrefix(trimmed, fence)); len(fields) > 0 {
			lang = strings.ToLower(fields[0])
		}
	}
	return blocks
}

// Options configures an Extractor.
type Options struct {
	// OutputKey, when set, stores the extracted []Block in the chain state.
	OutputKey string
	// Languages restricts extraction to the given info strings. Empty
	// accepts every block.
	Languages []string
	Logger    logging.Logger
}

// Extractor is the stage returning one tool-role message per code block of
// the last message. A reply without blocks produces nothing.
type Extractor struct {
	opts      Options
	languages map[string]struct{}
}

// NewExtractor creates a code extraction stage.
func NewExtractor(optFns ...func(o *Options)) *Extractor {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	var languages map[string]struct{}
	if len(opts.Languages) > 0 {
		languages = make(map[string]struct{}, len(opts.Languages))
		for _, l := range opts.Languages {
			languages[strings.ToLower(l)] = struct{}{}
		}
	}
	return &Extractor{opts: opts, languages: languages}
}

// Name implements core.Named.
func (e *Extractor) Name() string { return "code:extract" }

// Invoke implements core.Stage.
func (e *Extractor) Invoke(_ context.Context, log *core.Log, state core.State) ([]core.Message, error) {
	last, ok := log.Last()
	if !ok {
		return nil, nil
	}

	var (
		blocks []Block
		out    []core.Message
	)
	for _, b := range Extract(last.Content()) {
		if e.languages != nil {
			if _, keep := e.languages[b.Language]; !keep {
				continue
			}
		}
		msg, err := core.NewMessage(core.RoleTool, b.Code)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
		out = append(out, msg)
	}

	if e.opts.OutputKey != "" {
		state[e.opts.OutputKey] = blocks
	}

	if len(out) == 0 {
		e.opts.Logger.Debug("code.extract.none", "role", last.Role())
		return nil, nil
	}
	e.opts.Logger.Debug("code.extract.complete", "blocks", len(out))
	return out, nil
}
