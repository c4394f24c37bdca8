// Package build implements the game build orchestrator: a small graph of
// named tasks that clean the build directory, copy static assets and the
// Go WebAssembly runtime, compile the game for the browser, and serve the
// result with live reload.
//
// Task order for the default task:
//
//	clean -> copy-static -> copy-runtime -> build -> serve
//
// Each task runs at most once per Run call, after its dependencies.
package build
