package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hupe1980/promptchain/core"
)

func emit(content string) core.Stage {
	return core.StageFunc(func(context.Context, *core.Log, core.State) ([]core.Message, error) {
		return []core.Message{core.Assistant(content)}, nil
	})
}

type namedStage struct {
	core.StageFunc
	name string
}

func (s namedStage) Name() string { return s.name }

// MockStage for verifying stage invocation.
type MockStage struct{ mock.Mock }

func (m *MockStage) Invoke(ctx context.Context, log *core.Log, state core.State) ([]core.Message, error) {
	args := m.Called(ctx, log, state)
	msgs, _ := args.Get(0).([]core.Message)
	return msgs, args.Error(1)
}

func TestProcessor_Ordering(t *testing.T) {
	p := New(core.NewLog(core.System("sys")))
	p.Append(emit("A")).Then(emit("B")).Append(emit("C"))
	assert.Equal(t, 3, p.Stages())

	_, err := p.Invoke(context.Background(), nil)
	require.NoError(t, err)

	var contents []string
	for _, m := range p.Log().Messages() {
		contents = append(contents, m.Content())
	}
	assert.Equal(t, []string{"sys", "A", "B", "C"}, contents)
}

func TestProcessor_StagesSeeEarlierOutput(t *testing.T) {
	var seen []int
	observe := core.StageFunc(func(_ context.Context, log *core.Log, _ core.State) ([]core.Message, error) {
		seen = append(seen, log.Len())
		return nil, nil
	})

	p := New(nil).Append(observe).Append(emit("x")).Append(observe)
	_, err := p.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, seen)
}

func TestProcessor_StateSharing(t *testing.T) {
	writer := core.StageFunc(func(_ context.Context, _ *core.Log, s core.State) ([]core.Message, error) {
		s["greeting"] = "hello " + s["name"].(string)
		s["name"] = "overwritten"
		return nil, nil
	})
	var observed any
	reader := core.StageFunc(func(_ context.Context, _ *core.Log, s core.State) ([]core.Message, error) {
		observed = s["greeting"]
		return nil, nil
	})

	p := New(nil).Append(writer).Append(reader)
	state, err := p.Invoke(context.Background(), core.State{"name": "ada"})
	require.NoError(t, err)

	assert.Equal(t, "hello ada", observed)
	assert.Equal(t, "overwritten", state["name"])
	assert.Equal(t, state, p.State())

	// a second invocation overwrites with the new initial state
	state, err = p.Invoke(context.Background(), core.State{"name": "bob"})
	require.NoError(t, err)
	assert.Equal(t, "hello bob", state["greeting"])
}

func TestProcessor_FailFast(t *testing.T) {
	boom := errors.New("boom")
	failing := namedStage{
		name: "failing",
		StageFunc: func(context.Context, *core.Log, core.State) ([]core.Message, error) {
			return nil, boom
		},
	}
	ran := false
	after := core.StageFunc(func(context.Context, *core.Log, core.State) ([]core.Message, error) {
		ran = true
		return nil, nil
	})

	p := New(nil).Append(emit("first")).Append(failing).Append(after)
	_, err := p.Invoke(context.Background(), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, 1, stageErr.Index)
	assert.Equal(t, "failing", stageErr.Stage)
	assert.Equal(t, "chain stage 1 (failing) failed: boom", stageErr.Error())

	assert.False(t, ran)
	assert.Equal(t, 1, p.Log().Len())
}

func TestProcessor_StagesShareLogAndState(t *testing.T) {
	log := core.NewLog(core.System("sys"))
	first, second, skipped := new(MockStage), new(MockStage), new(MockStage)

	p := New(log).Append(first).Append(second).Append(skipped)

	first.On("Invoke", mock.Anything, log, mock.MatchedBy(func(s core.State) bool {
		return s["topic"] == "go"
	})).Return([]core.Message{core.Assistant("draft")}, nil).Once()
	second.On("Invoke", mock.Anything, mock.MatchedBy(func(l *core.Log) bool {
		return l == log && l.Len() == 2
	}), mock.Anything).Return(nil, errors.New("rejected")).Once()

	_, err := p.Invoke(context.Background(), core.State{"topic": "go"})
	require.Error(t, err)

	first.AssertExpectations(t)
	second.AssertExpectations(t)
	skipped.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessor_AppendNilPanics(t *testing.T) {
	var nilMock *MockStage
	var nilFunc core.StageFunc

	tests := []struct {
		name  string
		stage core.Stage
	}{
		{"nil interface", nil},
		{"nil pointer", nilMock},
		{"nil func", nilFunc},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(nil)
			defer func() {
				r := recover()
				require.NotNil(t, r)
				err, ok := r.(*core.ConstructionError)
				require.True(t, ok)
				assert.ErrorIs(t, err, core.ErrInvalidStage)
				assert.Equal(t, 0, p.Stages())
			}()
			p.Append(tt.stage)
		})
	}
}

func TestProcessor_EmptyPipeline(t *testing.T) {
	log := core.NewLog(core.User("hi"))
	p := New(log)
	state, err := p.Invoke(context.Background(), core.State{"k": 1})
	require.NoError(t, err)
	assert.Equal(t, core.State{"k": 1}, state)
	assert.Same(t, log, p.Log())
	assert.NotEmpty(t, p.ID())
}

func TestProcessor_Tracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	failing := core.StageFunc(func(context.Context, *core.Log, core.State) ([]core.Message, error) {
		return nil, errors.New("boom")
	})

	p := New(nil, func(o *Options) { o.TracerProvider = provider }).
		Append(namedStage{name: "greeter", StageFunc: emit("hi").(core.StageFunc)}).
		Append(failing)

	_, err := p.Invoke(context.Background(), nil)
	require.Error(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)

	// stage spans end before the root span
	assert.Equal(t, "chain.stage", spans[0].Name)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)
	assert.Equal(t, "chain.stage", spans[1].Name)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Equal(t, "chain.invoke", spans[2].Name)
	assert.Equal(t, codes.Error, spans[2].Status.Code)

	assert.Equal(t, spans[2].SpanContext.SpanID(), spans[0].Parent.SpanID())

	attrs := map[string]any{}
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, "greeter", attrs["stage.name"])
	assert.Equal(t, int64(0), attrs["stage.index"])
	assert.Equal(t, int64(1), attrs["stage.emitted"])
}
