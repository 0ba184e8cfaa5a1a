// Package config evaluates froyo-age Starlark scripts and loads the
// settings file of the command-line tool.
//
// # Components
//
// StarlarkEvaluator: runs scripts with timeout enforcement and converts the
// resulting globals to Go values. It is also the host that the bridge
// package uses to parse and evaluate decrypted content, so decrypted
// expressions see the same builtins as scripts: struct, json, range,
// enumerate, zip, path, and anything added with Register.
//
// SettingsLoader: reads settings written in CUE (a file or a package
// directory), YAML or JSON. Every format is checked against the built-in
// CUE schema held by a SchemaRegistry and then by struct validation.
//
// Watcher: re-runs a callback when scripts, ciphertext or settings change,
// debouncing bursts of filesystem events.
//
// # Usage Example
//
//	evaluator := config.NewStarlarkEvaluator(settings.TimeoutDuration())
//	b := bridge.New(bridge.FromLibrary(lib), evaluator, bridge.Options{})
//	evaluator.Register(b.Builtins())
//
//	result, err := evaluator.EvaluateFile(ctx, "secrets.star", nil)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(result.Output["db_password"])
package config
