package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/rendis/flowgraph/internal/automation"
	"github.com/rendis/flowgraph/internal/concurrent"
	"github.com/rendis/flowgraph/internal/diagram"
	"github.com/rendis/flowgraph/internal/logging"
	"github.com/rendis/flowgraph/internal/model"
	"github.com/rendis/flowgraph/internal/reference"
	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/internal/validation"
	"github.com/rendis/flowgraph/pkg/mcp"
	"github.com/rendis/flowgraph/pkg/schema"
)

// exitCannotSave is returned when a document has save-blocking errors.
const exitCannotSave = 2

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "format",
		Usage: "Output format (text, json)",
		Value: "text",
		Validator: func(s string) error {
			if s != "text" && s != "json" {
				return fmt.Errorf("format must be text or json")
			}
			return nil
		},
	}
}

// --- validate ---

type validateReport struct {
	Valid      bool                             `json:"valid"`
	CanSave    bool                             `json:"canSave"`
	Result     *schema.WorkflowValidationResult `json:"result"`
	Simulation *automation.BatchResult          `json:"simulation,omitempty"`
	Run        *store.ValidationRun             `json:"run,omitempty"`
}

func (a *app) validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate a workflow document",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			formatFlag(),
			&cli.BoolFlag{Name: "simulate", Usage: "Run automation actions and test data through the simulator"},
			&cli.BoolFlag{Name: "record", Usage: "Append the result to the stored model's validation history"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			data, err := readDocument(cmd)
			if err != nil {
				return err
			}
			wv, set, err := a.validator()
			if err != nil {
				return err
			}

			result, m := wv.ValidateDocument(data)
			report := validateReport{Valid: result.Valid(), CanSave: validation.CanSave(result), Result: result}

			if cmd.Bool("simulate") && m != nil {
				opts := []automation.BatchOption{automation.WithLogger(a.logger)}
				if a.cfg.Concurrency > 0 {
					opts = append(opts, automation.WithConcurrency(a.cfg.Concurrency))
				}
				batch := automation.RunBatch(ctx, automation.CollectItems(m), automation.NewSimulator(set), opts...)
				report.Simulation = &batch
			}

			if cmd.Bool("record") {
				if m == nil || m.Metadata().ID == "" {
					return cli.Exit("--record needs a decodable document with an id", 1)
				}
				run, err := a.record(ctx, m.Metadata().ID, result, report.CanSave)
				if err != nil {
					return err
				}
				report.Run = run
			}

			out := cmd.Root().Writer
			if cmd.String("format") == "json" {
				err = writeJSON(out, report)
			} else {
				err = printReport(out, report)
			}
			if err != nil {
				return err
			}
			if !report.CanSave {
				return cli.Exit(fmt.Sprintf("document cannot be saved: %d blocking issue(s)", len(validation.BlockingIssues(result))), exitCannotSave)
			}
			return nil
		},
	}
}

func (a *app) record(ctx context.Context, modelID string, result *schema.WorkflowValidationResult, canSave bool) (*store.ValidationRun, error) {
	s, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	run, err := store.NewValidationRun(modelID, result, canSave)
	if err != nil {
		return nil, err
	}
	if err := s.AppendValidation(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func printReport(w io.Writer, r validateReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, group := range [][]schema.ValidationIssue{r.Result.Errors, r.Result.Warnings, r.Result.Infos} {
		for _, issue := range group {
			msg := issue.LocalizedMessage
			if msg == "" {
				msg = issue.Message
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", issue.Severity, issue.Code, issue.NodeID, msg)
		}
	}
	if sim := r.Simulation; sim != nil {
		for _, res := range sim.Results {
			status := "ok"
			if !res.Success {
				status = "failed: " + res.Error
			}
			fmt.Fprintf(tw, "simulate\t%s %s\t%s\t%s\n", res.Kind, res.ItemID, res.NodeID, status)
		}
		fmt.Fprintf(tw, "\nsimulated=%d\tfailed=%d\tpanicked=%d\tskipped=%d\n",
			len(sim.Results), sim.Failed, sim.Panicked, sim.Skipped)
	}
	fmt.Fprintf(tw, "\nvalid=%t\tcan_save=%t\n", r.Valid, r.CanSave)
	return tw.Flush()
}

// --- analyze ---

func (a *app) analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Analyze the region of a concurrent node",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "node", Usage: "ID of the concurrent node", Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			m, err := decodeArg(cmd)
			if err != nil {
				return err
			}
			mgr, err := concurrent.FromModel(m, cmd.String("node"), concurrent.WithLogger(a.logger))
			if err != nil {
				return err
			}
			order, ordered := mgr.TopologicalOrder()
			return writeJSON(cmd.Root().Writer, map[string]any{
				"nodeId":           cmd.String("node"),
				"startNodeId":      mgr.StartNodeID(),
				"endNodeId":        mgr.EndNodeID(),
				"containedNodeIds": mgr.ContainedNodeIDs(),
				"branches":         mgr.Branches(),
				"validation":       mgr.Validate(),
				"structure":        mgr.AnalyzeStructure(),
				"topologicalOrder": order,
				"ordered":          ordered,
				"cyclePath":        mgr.CyclePath(),
			})
		},
	}
}

func decodeArg(cmd *cli.Command) (*model.WorkflowModel, error) {
	data, err := readDocument(cmd)
	if err != nil {
		return nil, err
	}
	return model.Decode(data)
}

// --- reference ---

func (a *app) referenceCommand() *cli.Command {
	return &cli.Command{
		Name:      "reference",
		Usage:     "Create reference nodes and print the updated document",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "node", Usage: "Source node ID (repeatable)", Required: true},
			&cli.StringFlag{Name: "out", Usage: "Write the updated document here instead of stdout"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			m, err := decodeArg(cmd)
			if err != nil {
				return err
			}
			mgr := reference.NewManager(m, reference.WithLogger(a.logger))
			batch := mgr.CreateBatchReferences(cmd.StringSlice("node"))
			for _, e := range batch.Errors {
				fmt.Fprintf(cmd.Root().ErrWriter, "skipped %s: %s\n", e.NodeID, e.Error)
			}

			doc, err := model.Encode(mgr.Model())
			if err != nil {
				return err
			}
			if path := cmd.String("out"); path != "" {
				if err := os.WriteFile(path, doc, 0o644); err != nil {
					return err
				}
			} else if _, err := fmt.Fprintln(cmd.Root().Writer, string(doc)); err != nil {
				return err
			}
			if !batch.Success {
				return cli.Exit(fmt.Sprintf("%d of %d references failed", len(batch.Errors), len(batch.Errors)+len(batch.ReferenceNodes)), 1)
			}
			return nil
		},
	}
}

// --- diagram ---

func (a *app) diagramCommand() *cli.Command {
	return &cli.Command{
		Name:      "diagram",
		Usage:     "Render a workflow document as a diagram",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format (mermaid, ascii, png, svg, dot)",
				Value: "mermaid",
				Validator: func(s string) error {
					if s == "mermaid" || s == "ascii" {
						return nil
					}
					_, err := diagram.ParseImageFormat(s)
					return err
				},
			},
			&cli.BoolFlag{Name: "issues", Usage: "Highlight nodes with validation issues"},
			&cli.StringFlag{Name: "out", Usage: "Write the diagram here instead of stdout"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			data, err := readDocument(cmd)
			if err != nil {
				return err
			}
			m, err := model.Decode(data)
			if err != nil {
				return err
			}

			var result *schema.WorkflowValidationResult
			if cmd.Bool("issues") {
				wv, _, err := a.validator()
				if err != nil {
					return err
				}
				result = wv.Validate(m)
			}
			d := diagram.Build(m, result)

			var out []byte
			switch format := cmd.String("format"); format {
			case "mermaid":
				out = []byte(diagram.RenderMermaid(d))
			case "ascii":
				out = []byte(diagram.RenderASCII(d))
			default:
				f, _ := diagram.ParseImageFormat(format)
				if out, err = diagram.RenderImage(ctx, d, f); err != nil {
					return err
				}
			}

			if path := cmd.String("out"); path != "" {
				return os.WriteFile(path, out, 0o644)
			}
			_, err = cmd.Root().Writer.Write(out)
			return err
		},
	}
}

// --- save / models / history ---

func (a *app) saveCommand() *cli.Command {
	return &cli.Command{
		Name:      "save",
		Usage:     "Validate a document and store it when it can be saved",
		ArgsUsage: "FILE",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			data, err := readDocument(cmd)
			if err != nil {
				return err
			}
			wv, _, err := a.validator()
			if err != nil {
				return err
			}
			result, m := wv.ValidateDocument(data)
			canSave := validation.CanSave(result)
			if !canSave {
				blocking := &schema.WorkflowValidationResult{Errors: validation.BlockingIssues(result)}
				for _, issue := range blocking.Errors {
					fmt.Fprintf(cmd.Root().ErrWriter, "%s: %s\n", issue.Code, issue.Message)
				}
				return cli.Exit(fmt.Sprintf("document cannot be saved: %v", blocking.ToError()), exitCannotSave)
			}
			if m.Metadata().ID == "" {
				if m, err = model.Decode(data, model.WithID(uuid.NewString())); err != nil {
					return err
				}
			}

			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			id := m.Metadata().ID
			if err := s.SaveModel(ctx, m); err != nil {
				return err
			}
			run, err := store.NewValidationRun(id, result, canSave)
			if err != nil {
				return err
			}
			if err := s.AppendValidation(ctx, run); err != nil {
				return err
			}
			a.logger.InfoContext(logging.WithModelID(ctx, id), "model saved", "sequence", run.Sequence)
			_, err = fmt.Fprintln(cmd.Root().Writer, id)
			return err
		},
	}
}

func (a *app) modelsCommand() *cli.Command {
	return &cli.Command{
		Name:  "models",
		Usage: "Manage stored models",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List stored models, most recently updated first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Substring filter on model name"},
					&cli.IntFlag{Name: "limit", Usage: "Maximum number of models", Value: 50},
					&cli.IntFlag{Name: "offset", Usage: "Models to skip"},
					formatFlag(),
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					s, err := a.openStore(ctx)
					if err != nil {
						return err
					}
					defer s.Close()

					list, err := s.ListModels(ctx, store.ModelFilter{
						NameContains: cmd.String("name"),
						Limit:        cmd.Int("limit"),
						Offset:       cmd.Int("offset"),
					})
					if err != nil {
						return err
					}
					if cmd.String("format") == "json" {
						if list == nil {
							list = []*store.ModelSummary{}
						}
						return writeJSON(cmd.Root().Writer, list)
					}
					tw := tabwriter.NewWriter(cmd.Root().Writer, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tNAME\tNODES\tEDGES\tUPDATED")
					for _, ms := range list {
						fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", ms.ID, ms.Name, ms.NodeCount, ms.EdgeCount, ms.UpdatedAt.Format("2006-01-02 15:04:05"))
					}
					return tw.Flush()
				},
			},
			{
				Name:      "get",
				Usage:     "Print a stored model document",
				ArgsUsage: "ID",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					s, err := a.openStore(ctx)
					if err != nil {
						return err
					}
					defer s.Close()

					m, err := s.GetModel(ctx, cmd.Args().First())
					if err != nil {
						return err
					}
					doc, err := model.Encode(m)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(cmd.Root().Writer, string(doc))
					return err
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a stored model and its validation history",
				ArgsUsage: "ID",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					s, err := a.openStore(ctx)
					if err != nil {
						return err
					}
					defer s.Close()
					return s.DeleteModel(ctx, cmd.Args().First())
				},
			},
		},
	}
}

func (a *app) historyCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "Show the validation history of a stored model",
		ArgsUsage: "ID",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Usage: "Maximum number of runs (0 = all)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.ListValidations(ctx, cmd.Args().First(), cmd.Int("limit"))
			if err != nil {
				return err
			}
			if runs == nil {
				runs = []*store.ValidationRun{}
			}
			return writeJSON(cmd.Root().Writer, runs)
		},
	}
}

// --- serve ---

func (a *app) serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the flowgraph MCP tools over stdio",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-store", Usage: "Run without a model store"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			wv, _, err := a.validator()
			if err != nil {
				return err
			}
			deps := mcp.FlowServerDeps{Validator: wv, Logger: a.logger, Version: version}
			if !cmd.Bool("no-store") {
				s, err := a.openStore(ctx)
				if err != nil {
					return err
				}
				defer s.Close()
				deps.Store = s
			}

			srv, err := mcp.NewFlowServer(deps)
			if err != nil {
				return err
			}
			a.logger.Info("serving MCP tools on stdio", "db", a.cfg.DBPath, "store", deps.Store != nil)
			return srv.Serve(ctx)
		},
	}
}
