package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"pluginsched/internal/appctx"
	"pluginsched/internal/store"
)

var (
	taskPlugin          string
	taskIntervalSeconds int
	taskCronMinute      string
	taskCronHour        string
	taskCronDayOfMonth  string
	taskCronMonth       string
	taskCronDayOfWeek   string
	taskParametersJSON  string
	taskPriority        int
	taskMaxRetries      int
	taskTimeoutSeconds  int
	taskDescription     string
	taskTags            string
	taskType            string
)

var addTaskCmd = &cobra.Command{
	Use:   "add-task <name>",
	Short: "Create a new scheduled task",
	Long: `add-task writes a new row to the task table through the admin write
path, which bumps updated_at and is therefore observed by beat's change
detection on its next tick (spec.md §8 invariant 1).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if taskPlugin == "" {
			return fmt.Errorf("--plugin is required")
		}
		usingCron := taskCronMinute != "" || taskCronHour != "" || taskCronDayOfMonth != "" || taskCronMonth != "" || taskCronDayOfWeek != ""
		if taskIntervalSeconds <= 0 && !usingCron {
			return fmt.Errorf("one of --interval-seconds or --cron-minute/--cron-hour/--cron-day-of-month/--cron-month/--cron-day-of-week is required")
		}

		params := map[string]interface{}{}
		if taskParametersJSON != "" {
			if err := json.Unmarshal([]byte(taskParametersJSON), &params); err != nil {
				return fmt.Errorf("--parameters must be a JSON object: %w", err)
			}
		}

		task := store.Task{
			ID:             uuid.NewString(),
			Name:           args[0],
			Description:    taskDescription,
			Tags:           taskTags,
			TaskType:       taskType,
			PluginName:     taskPlugin,
			Parameters:     params,
			Enabled:        true,
			Priority:       taskPriority,
			MaxRetries:     taskMaxRetries,
			TimeoutSeconds: taskTimeoutSeconds,
			UpdatedAt:      time.Now(),
		}
		if usingCron {
			task.ScheduleType = store.ScheduleCron
			task.ScheduleConfig = store.JSONMap{
				"minute":        orStar(taskCronMinute),
				"hour":          orStar(taskCronHour),
				"day_of_month":  orStar(taskCronDayOfMonth),
				"month_of_year": orStar(taskCronMonth),
				"day_of_week":   orStar(taskCronDayOfWeek),
			}
		} else {
			task.ScheduleType = store.ScheduleInterval
			task.ScheduleConfig = store.JSONMap{"interval_seconds": taskIntervalSeconds}
		}

		app, err := appctx.New()
		if err != nil {
			return Runtime(err)
		}
		defer app.Close()

		if err := app.Store.Upsert(cmd.Context(), &task); err != nil {
			return Runtime(err)
		}
		fmt.Println(task.ID)
		return nil
	},
}

var disableTaskCmd = &cobra.Command{
	Use:   "disable-task <id>",
	Short: "Disable a scheduled task",
	Args:  cobra.ExactArgs(1),
	RunE:  setEnabled(false),
}

var enableTaskCmd = &cobra.Command{
	Use:   "enable-task <id>",
	Short: "Enable a scheduled task",
	Long: `enable-task flips enabled back to true. Per spec.md §8's round-trip
law, the task returns to fireable state with its schedule unchanged, and per
invariant 2, it fires at most max_loop_interval + schedule_period later.`,
	Args: cobra.ExactArgs(1),
	RunE: setEnabled(true),
}

func orStar(field string) string {
	if field == "" {
		return "*"
	}
	return field
}

func setEnabled(enabled bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := appctx.New()
		if err != nil {
			return Runtime(err)
		}
		defer app.Close()

		task, err := app.Store.Get(cmd.Context(), args[0])
		if err != nil {
			return Runtime(err)
		}
		task.Enabled = enabled
		task.UpdatedAt = time.Now()
		if err := app.Store.Upsert(cmd.Context(), &task); err != nil {
			return Runtime(err)
		}
		fmt.Printf("%s: enabled=%t\n", task.ID, task.Enabled)
		return nil
	}
}

var removeTaskCmd = &cobra.Command{
	Use:   "remove-task <id>",
	Short: "Delete a scheduled task",
	Long: `remove-task deletes the row outright. Per spec.md §8 scenario 3
(delete while queued), any already-queued in-memory entry for this task is
simply dropped on beat's next rebuild — there is no separate dequeue step.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := appctx.New()
		if err != nil {
			return Runtime(err)
		}
		defer app.Close()

		if err := app.Store.Delete(cmd.Context(), args[0]); err != nil {
			return Runtime(err)
		}
		fmt.Printf("removed %s\n", args[0])
		return nil
	},
}

func init() {
	addTaskCmd.Flags().StringVar(&taskPlugin, "plugin", "", "plugin name to execute")
	addTaskCmd.Flags().IntVar(&taskIntervalSeconds, "interval-seconds", 0, "fire every N seconds")
	addTaskCmd.Flags().StringVar(&taskCronMinute, "cron-minute", "", "cron minute field; presence on any cron-* flag selects cron scheduling")
	addTaskCmd.Flags().StringVar(&taskCronHour, "cron-hour", "", "cron hour field")
	addTaskCmd.Flags().StringVar(&taskCronDayOfMonth, "cron-day-of-month", "", "cron day-of-month field")
	addTaskCmd.Flags().StringVar(&taskCronMonth, "cron-month", "", "cron month-of-year field")
	addTaskCmd.Flags().StringVar(&taskCronDayOfWeek, "cron-day-of-week", "", "cron day-of-week field")
	addTaskCmd.Flags().StringVar(&taskParametersJSON, "parameters", "", "JSON object of plugin parameters")
	addTaskCmd.Flags().IntVar(&taskPriority, "priority", 0, "dispatch priority, higher runs first on tie")
	addTaskCmd.Flags().IntVar(&taskMaxRetries, "max-retries", 0, "broker retry budget")
	addTaskCmd.Flags().IntVar(&taskTimeoutSeconds, "timeout-seconds", 0, "plugin execution time limit")
	addTaskCmd.Flags().StringVar(&taskDescription, "description", "", "free-form description, persisted verbatim")
	addTaskCmd.Flags().StringVar(&taskTags, "tags", "", "free-form tag string")
	addTaskCmd.Flags().StringVar(&taskType, "task-type", "", "free-form classification tag, descriptive only")
}
