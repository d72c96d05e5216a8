package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	wsclient "github.com/dohr-michael/studio/clients/ws"
	"github.com/dohr-michael/studio/internal/config"
	wsprotocol "github.com/dohr-michael/studio/internal/gateway/ws"
	"github.com/dohr-michael/studio/internal/storage"
	"github.com/dohr-michael/studio/internal/tasks"
)

// NewTasksCommand returns the tasks subcommand.
func NewTasksCommand() *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "Manage background tasks",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List tasks, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Comma-separated statuses to keep (pending,running,completed,failed)",
					},
					&cli.StringFlag{
						Name:  "related",
						Usage: "Only tasks attached to this storyboard",
					},
				},
				Action: runTasksList,
			},
			{
				Name:      "show",
				Usage:     "Show task details",
				ArgsUsage: "<task_id>",
				Action:    runTasksShow,
			},
			{
				Name:      "cancel",
				Usage:     "Cancel a pending or running task on the gateway",
				ArgsUsage: "<task_id>",
				Flags:     []cli.Flag{gatewayFlag},
				Action:    runTasksCancel,
			},
			{
				Name:   "clear",
				Usage:  "Delete every finished task",
				Action: runTasksClear,
			},
			{
				Name:  "prune",
				Usage: "Delete finished tasks older than a duration",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "older-than",
						Usage: "Age limit, e.g. 72h",
						Value: 7 * 24 * time.Hour,
					},
				},
				Action: runTasksPrune,
			},
		},
		DefaultCommand: "list",
	}
}

func runTasksList(ctx context.Context, cmd *cli.Command) error {
	filter := tasks.ListFilter{RelatedID: cmd.String("related")}
	if s := cmd.String("status"); s != "" {
		for _, st := range strings.Split(s, ",") {
			filter.Status = append(filter.Status, tasks.TaskStatus(strings.TrimSpace(st)))
		}
	}

	return withStores(ctx, cmd, func(_ *config.Config, backend storage.Backend) error {
		list, err := tasks.NewStore(backend).List(ctx, filter)
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}
		if len(list) == 0 {
			fmt.Println("No tasks found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tPROGRESS\tTITLE")
		for _, t := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\n", t.ID, t.Type, t.Status, t.Progress, t.Title)
		}
		return w.Flush()
	})
}

func runTasksShow(ctx context.Context, cmd *cli.Command) error {
	taskID := cmd.Args().First()
	if taskID == "" {
		return fmt.Errorf("usage: studio tasks show <task_id>")
	}

	return withStores(ctx, cmd, func(_ *config.Config, backend storage.Backend) error {
		t, err := tasks.NewStore(backend).Get(ctx, taskID)
		if err != nil {
			return fmt.Errorf("get task: %w", err)
		}
		printTask(t)
		return nil
	})
}

func printTask(t *tasks.Task) {
	fmt.Printf("ID:          %s\n", t.ID)
	fmt.Printf("Type:        %s\n", t.Type)
	fmt.Printf("Title:       %s\n", t.Title)
	fmt.Printf("Status:      %s\n", t.Status)
	fmt.Printf("Progress:    %d%%\n", t.Progress)
	fmt.Printf("Created:     %s\n", formatMillis(t.CreatedAt))
	if t.StartedAt != nil {
		fmt.Printf("Started:     %s\n", formatMillis(*t.StartedAt))
	}
	if t.CompletedAt != nil {
		fmt.Printf("Completed:   %s\n", formatMillis(*t.CompletedAt))
	}
	if t.RelatedID != "" {
		fmt.Printf("Related:     %s\n", t.RelatedID)
	}
	if t.Description != "" {
		fmt.Printf("\nDescription:\n%s\n", t.Description)
	}
	if t.Error != "" {
		fmt.Printf("\nError: %s\n", t.Error)
	}
	if len(t.Result) > 0 {
		fmt.Printf("\nResult:\n%s\n", t.Result)
	}
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}

// Cancellation has to reach the process running the job, so it goes
// through the gateway.
func runTasksCancel(ctx context.Context, cmd *cli.Command) error {
	taskID := cmd.Args().First()
	if taskID == "" {
		return fmt.Errorf("usage: studio tasks cancel <task_id>")
	}

	url, err := gatewayURL(cmd)
	if err != nil {
		return err
	}
	client, err := wsclient.Dial(ctx, url)
	if err != nil {
		return fmt.Errorf("connect to gateway: %w", err)
	}
	defer client.Close()

	payload, err := client.Call(wsprotocol.MethodCancelTask, map[string]string{"id": taskID})
	if err != nil {
		return fmt.Errorf("cancel task: %w", err)
	}
	var t tasks.Task
	if err := json.Unmarshal(payload, &t); err != nil {
		return fmt.Errorf("decode task: %w", err)
	}
	fmt.Printf("Task %s is %s.\n", t.ID, t.Status)
	return nil
}

// localRegistry works on finished tasks only; it is never initialized so a
// running gateway's tasks are left alone.
func localRegistry(backend storage.Backend) *tasks.Registry {
	return tasks.NewRegistry(tasks.RegistryConfig{Store: tasks.NewStore(backend)})
}

func runTasksClear(ctx context.Context, cmd *cli.Command) error {
	return withStores(ctx, cmd, func(_ *config.Config, backend storage.Backend) error {
		reg := localRegistry(backend)
		defer reg.Dispose()

		n, err := reg.ClearCompleted()
		if err != nil {
			return fmt.Errorf("clear tasks: %w", err)
		}
		fmt.Printf("Deleted %d finished task(s).\n", n)
		return nil
	})
}

func runTasksPrune(ctx context.Context, cmd *cli.Command) error {
	age := cmd.Duration("older-than")
	if age <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}

	return withStores(ctx, cmd, func(_ *config.Config, backend storage.Backend) error {
		reg := localRegistry(backend)
		defer reg.Dispose()

		n, err := reg.Prune(time.Now().Add(-age))
		if err != nil {
			return fmt.Errorf("prune tasks: %w", err)
		}
		fmt.Printf("Deleted %d task(s) older than %s.\n", n, age)
		return nil
	})
}
