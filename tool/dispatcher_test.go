package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/hupe1980/promptchain/core"
	"github.com/hupe1980/promptchain/internal/testutil"
)

func weatherRegistry() *Registry {
	weather := NewFunctionTool("get_weather", "Current temperature of a city", []Param{
		{Name: "city_name", Type: "string"},
	}, func(_ context.Context, args map[string]any) (any, error) {
		if args["city_name"] == "Atlantis" {
			return nil, errors.New("city is under water")
		}
		return 27.5, nil
	})
	boom := NewFunctionTool("explode", "", nil, func(context.Context, map[string]any) (any, error) {
		panic("kaboom")
	})
	report := NewFunctionTool("report", "", nil, func(context.Context, map[string]any) (any, error) {
		return map[string]any{"temp": 27.5, "unit": "C"}, nil
	})
	return NewRegistry(weather, boom, report)
}

func TestDispatcher_Success(t *testing.T) {
	d := NewDispatcher(weatherRegistry())
	log := testutil.NewLogBuilder().
		User("How warm is it in Shenyang?").
		ToolCall("get_weather", `{"city_name":"Shenyang"}`).
		Build()

	out, err := d.Invoke(context.Background(), log, core.NewState())
	require.NoError(t, err)
	require.Len(t, out, 1)

	res, ok := out[0].(core.ToolResult)
	require.True(t, ok)
	assert.Equal(t, "call_1", res.CallID())
	assert.Equal(t, "27.5", res.Content())
	assert.Equal(t, core.RoleTool, res.Role())

	// the request has been consumed
	assert.Equal(t, 1, log.Len())
	last, _ := log.Last()
	assert.Equal(t, core.KindPlain, last.Kind())
}

func TestDispatcher_NoOp(t *testing.T) {
	d := NewDispatcher(weatherRegistry())

	out, err := d.Invoke(context.Background(), core.NewLog(), core.NewState())
	require.NoError(t, err)
	assert.Nil(t, out)

	log := core.NewLog(core.User("hi"), core.Assistant("hello"))
	out, err = d.Invoke(context.Background(), log, core.NewState())
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, 2, log.Len())
}

func TestDispatcher_Failures(t *testing.T) {
	tests := []struct {
		name     string
		function string
		args     string
		want     string
	}{
		{
			name:     "not found",
			function: "unknown_fn",
			args:     `{}`,
			want:     "Error: Function 'unknown_fn' not found in registered tools.",
		},
		{
			name:     "invalid json",
			function: "get_weather",
			args:     `{"city_name":`,
			want:     `Error: Could not parse arguments for function 'get_weather': Invalid JSON '{"city_name":'`,
		},
		{
			name:     "not an object",
			function: "get_weather",
			args:     `["Shenyang"]`,
			want:     `Error: Could not parse arguments for function 'get_weather': Invalid JSON '["Shenyang"]'`,
		},
		{
			name:     "argument mismatch",
			function: "get_weather",
			args:     `{"city":"Shenyang"}`,
			want:     "Error: Argument mismatch for function 'get_weather'",
		},
		{
			name:     "tool error",
			function: "get_weather",
			args:     `{"city_name":"Atlantis"}`,
			want:     "Error executing function 'get_weather': city is under water",
		},
		{
			name:     "tool panic",
			function: "explode",
			args:     ``,
			want:     "Error executing function 'explode': panic: kaboom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(weatherRegistry())
			log := core.NewLog(core.NewToolCallRequest("call_x", tt.function, tt.args))

			out, err := d.Invoke(context.Background(), log, core.NewState())
			require.NoError(t, err)
			require.Len(t, out, 1)

			res := out[0].(core.ToolResult)
			assert.Equal(t, "call_x", res.CallID())
			assert.Contains(t, res.Content(), tt.want)
			assert.True(t, log.IsEmpty())
		})
	}
}

func TestDispatcher_StructuredResult(t *testing.T) {
	d := NewDispatcher(weatherRegistry())
	res := d.Dispatch(context.Background(), core.NewToolCallRequest("c", "report", "{}"))
	assert.JSONEq(t, `{"temp":27.5,"unit":"C"}`, res.Content())
}

func TestDispatcher_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	d := NewDispatcher(weatherRegistry(), func(o *DispatcherOptions) {
		o.MeterProvider = provider
	})
	d.Dispatch(context.Background(), core.NewToolCallRequest("1", "get_weather", `{"city_name":"Shenyang"}`))
	d.Dispatch(context.Background(), core.NewToolCallRequest("2", "missing", `{}`))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	outcomes := map[string]int64{}
	var sawDuration bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case "promptchain.tool.calls":
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				for _, dp := range sum.DataPoints {
					outcome, _ := dp.Attributes.Value("outcome")
					outcomes[outcome.AsString()] += dp.Value
				}
			case "promptchain.tool.duration":
				_, ok := m.Data.(metricdata.Histogram[float64])
				require.True(t, ok)
				sawDuration = true
			}
		}
	}

	assert.Equal(t, map[string]int64{OutcomeOK: 1, OutcomeNotFound: 1}, outcomes)
	assert.True(t, sawDuration)
}

func TestStringify(t *testing.T) {
	type point struct {
		X int `json:"x"`
	}
	var nilPtr *point

	assert.Equal(t, "hello", Stringify("hello"))
	assert.Equal(t, "27.5", Stringify(27.5))
	assert.Equal(t, "42", Stringify(42))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "null", Stringify(nil))
	assert.Equal(t, "null", Stringify(nilPtr))
	assert.Equal(t, `{"x":1}`, Stringify(point{X: 1}))
	assert.Equal(t, `{"x":2}`, Stringify(&point{X: 2}))
	assert.Equal(t, `[1,2]`, Stringify([]int{1, 2}))
	assert.Equal(t, `{"a":"b"}`, Stringify(map[string]string{"a": "b"}))
}
