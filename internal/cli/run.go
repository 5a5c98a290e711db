package cli

import (
	"errors"
	"fmt"

	"github.com/harun/ragent/pkg/orchestrator"
	"github.com/spf13/cobra"
)

var (
	runTask string
	runTopK int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured writing task once",
	Long: `Load and embed the knowledge base, retrieve the context closest to the task,
ask the language model for a reply and save it through the file tool provider.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runTask, "task", "", "task description (overrides task.description)")
	runCmd.Flags().IntVar(&runTopK, "topk", 0, "number of documents to retrieve (overrides retrieval.top_k)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer a.shutdown(ctx)

	task := a.cfg.Task.Description
	if runTask != "" {
		task = runTask
	}
	topK := a.cfg.Retrieval.TopK
	if runTopK > 0 {
		topK = runTopK
	}

	retriever := a.newRetriever()
	defer retriever.Reset()

	if err := a.ingestKnowledge(ctx, retriever); err != nil {
		a.log.Error().Err(err).Msg("Knowledge ingestion failed")
		return err
	}

	docs, err := a.retrieveContext(ctx, retriever, task, topK)
	if err != nil {
		a.log.Error().Err(err).Msg("Retrieval failed")
		return err
	}

	session, err := a.newSession()
	if err != nil {
		return err
	}
	channels, err := a.newChannels()
	if err != nil {
		return err
	}

	tools := make([]orchestrator.ToolChannel, len(channels))
	for i, ch := range channels {
		tools[i] = ch
	}

	o, err := orchestrator.New(orchestrator.Config{
		Session:      session,
		Channels:     tools,
		SystemPrompt: a.cfg.Prompt,
		Context:      docs,
		Logger:       a.logger(),
	})
	if err != nil {
		return err
	}
	defer func() {
		// Teardown failures are reported without changing the run outcome
		if err := o.Close(ctx); err != nil {
			a.log.Warn().Err(err).Msg("Teardown failed")
		}
	}()

	if err := o.Initialize(ctx); err != nil {
		logStageError(a, err)
		return err
	}

	result, err := o.Run(ctx, task)
	if err != nil {
		logStageError(a, err)
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%d bytes, via %s/%s)\n",
		result.Path, len(result.Content), result.Channel, result.Tool)
	return nil
}

func logStageError(a *app, err error) {
	ev := a.log.Error().Err(err)
	var stageErr *orchestrator.StageError
	if errors.As(err, &stageErr) {
		ev = ev.Str("stage", string(stageErr.Stage))
	}
	ev.Msg("Run failed")
}
