// Package task provides eval.Task implementations that call a system under
// test over HTTP, as a local command, inside a container or as an OpenAI
// chat model. Each invocation emits one eval.Trace.
package task
