package promptchain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/promptchain/core"
	"github.com/hupe1980/promptchain/event"
	"github.com/hupe1980/promptchain/internal/testutil"
	"github.com/hupe1980/promptchain/model"
	"github.com/hupe1980/promptchain/parser"
	"github.com/hupe1980/promptchain/prompt"
	"github.com/hupe1980/promptchain/tool"
)

type weatherReport struct {
	City        string  `json:"city"`
	Temperature float64 `json:"temperature"`
}

func TestNew(t *testing.T) {
	p, err := New("You are a {{.persona}}.", func(o *Options) {
		o.Vars = map[string]any{"persona": "weather assistant"}
		o.History = []core.Message{core.User("hi"), core.Assistant("hello")}
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"You are a weather assistant.", "hi", "hello"}, testutil.Contents(p.Log()))
	assert.NotEmpty(t, p.ID())

	p, err = New("")
	require.NoError(t, err)
	assert.True(t, p.Log().IsEmpty())

	_, err = New("You are a {{.persona}}.")
	var cErr *core.ConstructionError
	assert.ErrorAs(t, err, &cErr)

	assert.Panics(t, func() { MustNew("{{") })
}

func TestFunctionCallingPipeline(t *testing.T) {
	registry := tool.NewRegistry(tool.NewFunctionTool(
		"get_weather",
		"Current temperature of a city",
		[]tool.Param{{Name: "city_name", Type: "string"}},
		func(_ context.Context, args map[string]any) (any, error) {
			return 27.5, nil
		},
	))

	llm := model.NewMockModel("mock-gpt").
		AddToolCall("call_1", "get_weather", `{"city_name":"Shenyang"}`).
		AddText(`The weather report: {"city":"Shenyang","temperature":27.5}`)

	bus := event.NewBus()
	var published []string
	bus.Subscribe("answer", func(p event.Payload) error {
		published = append(published, p.Message.Content())
		return nil
	})

	p := MustNew("You are a weather assistant.").
		Then(prompt.Human("How warm is it in {{.city}}?")).
		Then(model.NewStage(llm, func(o *model.StageOptions) { o.Tools = registry })).
		Then(tool.NewDispatcher(registry)).
		Then(model.NewStage(llm, func(o *model.StageOptions) {
			o.Tools = registry
			o.OutputKey = "llm_output"
		})).
		Then(event.NewNode("answer", func(o *event.Options) { o.Bus = bus })).
		Then(parser.New[weatherReport]("report"))

	state, err := p.Invoke(context.Background(), core.State{"city": "Shenyang"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"You are a weather assistant.",
		"How warm is it in Shenyang?",
		"27.5",
		`The weather report: {"city":"Shenyang","temperature":27.5}`,
	}, testutil.Contents(p.Log()))

	result, ok := p.Log().At(2).(core.ToolResult)
	require.True(t, ok)
	assert.Equal(t, "call_1", result.CallID())

	assert.Equal(t, weatherReport{City: "Shenyang", Temperature: 27.5}, state["report"])
	assert.NotContains(t, state, parser.ErrorKey("report"))
	assert.Equal(t, []string{`The weather report: {"city":"Shenyang","temperature":27.5}`}, published)

	requests := llm.Requests()
	require.Len(t, requests, 2)
	require.Len(t, requests[0].Tools, 1)
	assert.Equal(t, "get_weather", requests[0].Tools[0].Name())
	assert.Len(t, requests[1].Messages, 3)
}
