// Package chain provides the Processor, the engine that composes stages into
// a pipeline sharing one message log and one state map.
//
// A typical function-calling pipeline:
//
//	reg := tool.NewRegistry(weather)
//	p := chain.New(core.NewLog(core.System("You are a helpful assistant.")))
//	p.Append(prompt.Human("How warm is it in {{.city}}?")).
//		Append(model.NewStage(llm, func(o *model.StageOptions) { o.Tools = reg })).
//		Append(tool.NewDispatcher(reg)).
//		Append(model.NewStage(llm))
//
//	state, err := p.Invoke(ctx, core.State{"city": "Shenyang"})
package chain
