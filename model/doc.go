// Package model defines the provider-agnostic contract for language models
// and the chain stage that drives them.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Normalize tool call representation (ToolCall) and conversation turns (Turns)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers implement Model in the sub packages openai, anthropic and compat
// so chains stay decoupled from vendor SDKs.
package model
