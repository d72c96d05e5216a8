package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	wsclient "github.com/dohr-michael/studio/clients/ws"
	"github.com/dohr-michael/studio/internal/config"
	"github.com/dohr-michael/studio/internal/events"
	wsprotocol "github.com/dohr-michael/studio/internal/gateway/ws"
	"github.com/dohr-michael/studio/internal/storage"
	"github.com/dohr-michael/studio/internal/storyboard"
)

// NewStoryboardsCommand returns the storyboards subcommand.
func NewStoryboardsCommand() *cli.Command {
	return &cli.Command{
		Name:    "storyboards",
		Aliases: []string{"sb"},
		Usage:   "Manage storyboards",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List storyboards",
				Action: runStoryboardsList,
			},
			{
				Name:      "show",
				Usage:     "Print a storyboard",
				ArgsUsage: "<storyboard_id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "yaml",
						Usage: "Print as an importable YAML document",
					},
				},
				Action: runStoryboardsShow,
			},
			{
				Name:      "import",
				Usage:     "Create or replace a storyboard from a YAML or JSON file",
				ArgsUsage: "<file>",
				Action:    runStoryboardsImport,
			},
			{
				Name:      "produce",
				Usage:     "Render every missing frame, narration and clip on the gateway",
				ArgsUsage: "<storyboard_id>",
				Flags: []cli.Flag{
					gatewayFlag,
					&cli.BoolFlag{
						Name:  "wait",
						Usage: "Follow progress until the task finishes",
					},
				},
				Action: runStoryboardsProduce,
			},
			{
				Name:      "regenerate",
				Usage:     "Render one scene phase again on the gateway",
				ArgsUsage: "<storyboard_id> <image|audio|video> <index>",
				Flags: []cli.Flag{
					gatewayFlag,
					&cli.BoolFlag{
						Name:  "wait",
						Usage: "Follow progress until the task finishes",
					},
				},
				Action: runStoryboardsRegenerate,
			},
		},
		DefaultCommand: "list",
	}
}

func runStoryboardsList(ctx context.Context, cmd *cli.Command) error {
	return withStores(ctx, cmd, func(_ *config.Config, backend storage.Backend) error {
		list, err := storyboard.NewStore(backend).List(ctx)
		if err != nil {
			return fmt.Errorf("list storyboards: %w", err)
		}
		if len(list) == 0 {
			fmt.Println("No storyboards found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSCENES\tUPDATED\tTITLE")
		for _, sb := range list {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", sb.ID, len(sb.Scenes), formatMillis(sb.UpdatedAt), sb.Title)
		}
		return w.Flush()
	})
}

func runStoryboardsShow(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("usage: studio storyboards show <storyboard_id>")
	}

	return withStores(ctx, cmd, func(_ *config.Config, backend storage.Backend) error {
		sb, err := storyboard.NewStore(backend).Get(ctx, id)
		if err != nil {
			return err
		}

		var out []byte
		if cmd.Bool("yaml") {
			out, err = storyboard.EncodeYAML(sb)
		} else {
			out, err = json.MarshalIndent(sb, "", "  ")
			out = append(out, '\n')
		}
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	})
}

func runStoryboardsImport(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("usage: studio storyboards import <file>")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	return withStores(ctx, cmd, func(cfg *config.Config, backend storage.Backend) error {
		sb, err := storyboard.Import(ctx, storyboard.NewStore(backend), data,
			cfg.Pipeline.DefaultStyle, cfg.Pipeline.DefaultAspectRatio)
		if err != nil {
			return err
		}
		fmt.Printf("Storyboard %s saved (%d scenes).\n", sb.ID, len(sb.Scenes))
		return nil
	})
}

func runStoryboardsProduce(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("usage: studio storyboards produce <storyboard_id>")
	}
	return submitTask(ctx, cmd, id, wsprotocol.MethodProduce, map[string]string{"id": id})
}

func runStoryboardsRegenerate(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args()
	if args.Len() != 3 {
		return fmt.Errorf("usage: studio storyboards regenerate <storyboard_id> <image|audio|video> <index>")
	}
	index, err := strconv.Atoi(args.Get(2))
	if err != nil {
		return fmt.Errorf("invalid scene index %q", args.Get(2))
	}
	id := args.Get(0)
	return submitTask(ctx, cmd, id, wsprotocol.MethodRegenerate, map[string]any{
		"storyboard_id": id,
		"phase":         args.Get(1),
		"index":         index,
	})
}

// submitTask sends a task-creating request and, with --wait, prints the
// storyboard's events until that task reaches a terminal state.
func submitTask(ctx context.Context, cmd *cli.Command, storyboardID, method string, params any) error {
	url, err := gatewayURL(cmd)
	if err != nil {
		return err
	}
	client, err := wsclient.Dial(ctx, url)
	if err != nil {
		return fmt.Errorf("connect to gateway: %w", err)
	}
	defer client.Close()

	wait := cmd.Bool("wait")
	if wait {
		if err := client.Subscribe(storyboardID); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	payload, err := client.Call(method, params)
	if err != nil {
		return err
	}
	var accepted struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(payload, &accepted); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	fmt.Printf("Task %s queued.\n", accepted.TaskID)
	if !wait {
		return nil
	}
	return followTask(client, accepted.TaskID)
}

func followTask(client *wsclient.Client, taskID string) error {
	for {
		frame, err := client.ReadFrame()
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		if frame.Type != wsprotocol.FrameTypeEvent {
			continue
		}
		var evt events.Event
		if err := json.Unmarshal(frame.Payload, &evt); err != nil {
			continue
		}

		switch evt.Type {
		case events.EventTaskProgress:
			if p, ok := events.ExtractPayload[events.TaskProgressPayload](evt); ok && p.TaskID == taskID {
				fmt.Printf("[%3d%%] %s\n", p.Progress, p.Description)
			}
		case events.EventSceneRendered:
			if p, ok := events.ExtractPayload[events.SceneRenderedPayload](evt); ok {
				fmt.Printf("       scene %d %s: %s\n", p.Index+1, p.Phase, p.URI)
			}
		case events.EventSceneFailed:
			if p, ok := events.ExtractPayload[events.SceneFailedPayload](evt); ok {
				fmt.Printf("       scene %d %s failed (%s): %s\n", p.Index+1, p.Phase, p.Kind, p.Error)
			}
		case events.EventTaskCompleted:
			if p, ok := events.ExtractPayload[events.TaskCompletedPayload](evt); ok && p.TaskID == taskID {
				fmt.Printf("Task %s completed.\n", taskID)
				return nil
			}
		case events.EventTaskFailed:
			if p, ok := events.ExtractPayload[events.TaskFailedPayload](evt); ok && p.TaskID == taskID {
				return fmt.Errorf("task %s failed: %s", taskID, p.Error)
			}
		}
	}
}
