// Package core provides the foundational types shared by every promptchain
// package:
//
//   - Message, a closed tagged variant (PlainMessage, ToolCallRequest,
//     ToolResult) with (role, content) equality
//   - Log, the ordered message history with set algebra and pop/peek access
//   - State, the mutable key/value scratchpad shared by stages
//   - Stage, the single-method contract every pipeline element implements
//   - ConstructionError, raised for malformed static input
//
// The package deliberately holds no orchestration logic; see package chain for
// the engine and packages tool, parser, event and prompt for concrete stages.
package core
