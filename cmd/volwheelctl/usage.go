package main

import "fmt"

func printUsage() {
	// NOTE: Usage output is best-effort; write failures are non-fatal.
	_, _ = fmt.Println("volwheelctl controls a running volwheel daemon")
	_, _ = fmt.Println("Usage: volwheelctl <command> [flags]")
	_, _ = fmt.Println("Commands:")
	_, _ = fmt.Println("  status                       show daemon state")
	_, _ = fmt.Println("  reload                       re-read the settings file")
	_, _ = fmt.Println("  set-step <value>             set the per-notch volume step (0.01-0.50)")
	_, _ = fmt.Println("  add-mapping -combo <combo> [-target master|device|application]")
	_, _ = fmt.Println("              [-device-id <id>] [-device-name <name>] [-process <name>]")
	_, _ = fmt.Println("  remove-mapping <id>          delete one mapping")
	_, _ = fmt.Println("  list-mappings                show configured mappings")
	_, _ = fmt.Println("  list-devices                 show active render endpoints")
	_, _ = fmt.Println("  logs [-n <count>]            fetch recent warnings and errors")
	_, _ = fmt.Println("  stop                         shut the daemon down")
}
