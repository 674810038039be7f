// volwheelctl is the command-line control client for the volwheel daemon.
// It sends one command over the daemon's named pipe and prints the reply.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"volwheel/internal/ipc"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 1
	}

	req, err := parseCommand(args[0], args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	pipeName := ipc.DefaultPipeName()
	resp, err := ipc.Send(pipeName, req)
	if err != nil {
		if ipc.IsConnectionError(err) {
			fmt.Fprintf(os.Stderr, "volwheel is not running (no server on %s)\n", pipeName)
			return 1
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if !resp.OK {
		fmt.Fprintln(os.Stderr, resp.Error)
		return 1
	}

	printResponse(req.Command, resp)
	return 0
}

func parseCommand(command string, rest []string) (ipc.Request, error) {
	switch command {
	case "status", "reload", "list-mappings", "list-devices", "stop":
		if len(rest) != 0 {
			return ipc.Request{}, fmt.Errorf("%s takes no arguments", command)
		}
		return ipc.Request{Command: command}, nil

	case "set-step":
		if len(rest) != 1 {
			return ipc.Request{}, fmt.Errorf("usage: volwheelctl set-step <value>")
		}
		step, err := strconv.ParseFloat(rest[0], 64)
		if err != nil {
			return ipc.Request{}, fmt.Errorf("invalid step %q: %w", rest[0], err)
		}
		return ipc.Request{Command: ipc.CommandSetStep, Step: step}, nil

	case "add-mapping":
		return parseAddMapping(rest)

	case "remove-mapping":
		if len(rest) != 1 {
			return ipc.Request{}, fmt.Errorf("usage: volwheelctl remove-mapping <id>")
		}
		return ipc.Request{Command: ipc.CommandRemoveMapping, MappingID: rest[0]}, nil

	case "logs":
		fs := flag.NewFlagSet("logs", flag.ContinueOnError)
		limit := fs.Int("n", 0, "number of entries to fetch")
		if err := fs.Parse(rest); err != nil {
			return ipc.Request{}, err
		}
		return ipc.Request{Command: ipc.CommandRecentLogs, Limit: *limit}, nil

	default:
		printUsage()
		return ipc.Request{}, fmt.Errorf("unknown command %q", command)
	}
}

func parseAddMapping(rest []string) (ipc.Request, error) {
	fs := flag.NewFlagSet("add-mapping", flag.ContinueOnError)
	combo := fs.String("combo", "", "key combo, e.g. Ctrl+Shift")
	target := fs.String("target", "master", "target kind: master, device or application")
	deviceID := fs.String("device-id", "", "endpoint id for device targets (see list-devices)")
	deviceName := fs.String("device-name", "", "display name for device targets")
	process := fs.String("process", "", "process name for application targets, e.g. music.exe")
	if err := fs.Parse(rest); err != nil {
		return ipc.Request{}, err
	}
	if *combo == "" {
		return ipc.Request{}, fmt.Errorf("add-mapping requires -combo")
	}
	return ipc.Request{
		Command: ipc.CommandAddMapping,
		Mapping: &ipc.MappingSpec{
			Combo:      *combo,
			TargetKind: *target,
			DeviceID:   *deviceID,
			DeviceName: *deviceName,
			Process:    *process,
		},
	}, nil
}

func printResponse(command string, resp ipc.Response) {
	switch command {
	case ipc.CommandStatus:
		s := resp.Status
		if s == nil {
			fmt.Println("ok")
			return
		}
		fmt.Printf("pid:       %d\n", s.PID)
		fmt.Printf("step:      %.2f\n", s.Step)
		fmt.Printf("mappings:  %d\n", s.Mappings)
		fmt.Printf("hook:      %s\n", installedWord(s.HookInstalled))
		if s.StreamAddr != "" {
			fmt.Printf("stream:    %s\n", s.StreamAddr)
		}
		fmt.Printf("settings:  %s\n", s.SettingsPath)

	case ipc.CommandListMappings, ipc.CommandAddMapping:
		for _, m := range resp.Mappings {
			fmt.Printf("%s  %-24s %s\n", m.ID, m.Combo, m.Target)
		}

	case ipc.CommandListDevices:
		for _, d := range resp.Devices {
			fmt.Printf("%s  %s\n", d.ID, d.Name)
		}

	case ipc.CommandRecentLogs:
		for _, e := range resp.Logs {
			fmt.Printf("%s %-5s %s\n", e.Time.Format("15:04:05"), e.Level, e.Message)
		}

	default:
		fmt.Println("ok")
	}
}

func installedWord(installed bool) string {
	if installed {
		return "installed"
	}
	return "not installed"
}
