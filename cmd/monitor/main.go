package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"agent_orchestrator/internal/domain"
)

var strategies = []domain.StrategyName{
	domain.StrategyParallel,
	domain.StrategySequential,
	domain.StrategyConsensus,
	domain.StrategyLoadBalanced,
}

func main() {
	addr := flag.String("addr", "http://localhost:3000", "orchestrator base URL")
	interval := flag.Duration("interval", 2*time.Second, "refresh interval")
	user := flag.String("user", "monitor", "principal sent as X-User")
	embedded := flag.Bool("embedded", false, "start orchestrator in the same monitor process lifecycle")
	orchestratorBinary := flag.String("orchestrator-bin", "", "path to orchestrator binary (optional in embedded mode)")
	configPath := flag.String("config", "", "config file passed to the embedded orchestrator")
	flag.Parse()

	c := &client{
		baseURL: strings.TrimRight(*addr, "/"),
		user:    *user,
		http: &http.Client{
			Timeout: 45 * time.Second,
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var child *orchestratorProcess
	if *embedded {
		var err error
		child, err = spawnOrchestrator(*addr, *orchestratorBinary, *configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start embedded orchestrator: %v\n", err)
			os.Exit(1)
		}
		defer child.stop(5 * time.Second)
	}

	if err := awaitHealthy(ctx, c, 30*time.Second); err != nil {
		child.stop(time.Second)
		fmt.Fprintf(os.Stderr, "orchestrator health check failed: %v%s\n", err, child.logHint())
		os.Exit(1)
	}

	app := tview.NewApplication()
	tasksTable := tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false)
	tasksTable.SetTitle("Recent tasks (Enter inspect, F5 refresh, F10 quit)").SetBorder(true)

	detailView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true)
	detailView.SetTitle("Task").SetBorder(true)

	agentsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	agentsView.SetTitle("Agents").SetBorder(true)

	overviewView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	overviewView.SetTitle("Overview").SetBorder(true)

	var strategyIdx atomic.Int32
	promptInput := tview.NewInputField().
		SetLabel("Task -> Orchestrator: ")
	promptTitle := func() string {
		return fmt.Sprintf("Enter = distribute (%s, F2 cycles strategy)", strategies[strategyIdx.Load()])
	}
	promptInput.SetBorder(true).SetTitle(promptTitle())

	statusView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	statusView.SetBorder(true).SetTitle("Status")
	statusView.SetText(fmt.Sprintf(
		"Connected to %s as %s | shortcuts: F10 quit, F5 refresh, F2 strategy, Ctrl+L prompt, Ctrl+T tasks",
		c.baseURL,
		c.user,
	))

	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(overviewView, 3, 0, false).
		AddItem(agentsView, 0, 1, false).
		AddItem(detailView, 0, 2, false)

	mainLayout := tview.NewFlex().
		AddItem(tasksTable, 0, 1, false).
		AddItem(right, 0, 1, false)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(mainLayout, 0, 12, false).
		AddItem(promptInput, 3, 0, true).
		AddItem(statusView, 3, 0, false)

	var (
		mu             sync.Mutex
		selectedTaskID string
		lastTasks      []domain.TaskRecord
		lastHealth     []domain.AgentHealth
		detailsVersion atomic.Uint64
	)

	setStatusUI := func(msg string) {
		statusView.SetText(msg)
	}
	setStatusAsync := func(msg string) {
		app.QueueUpdateDraw(func() {
			statusView.SetText(msg)
		})
	}

	refreshDetailsAsync := func(taskID string) {
		if strings.TrimSpace(taskID) == "" {
			return
		}
		v := detailsVersion.Add(1)
		go func() {
			rec, err := c.task(taskID)
			if detailsVersion.Load() != v {
				return
			}
			app.QueueUpdateDraw(func() {
				if err != nil {
					detailView.SetText(fmt.Sprintf("error: %v", err))
					return
				}
				detailView.SetText(renderTaskDetail(rec))
			})
		}()
	}

	refresh := func(probeAgents bool) {
		m, err := c.metrics()
		if err != nil {
			app.QueueUpdateDraw(func() {
				tasksTable.Clear()
				tasksTable.SetCell(0, 0, tview.NewTableCell(fmt.Sprintf("load error: %v", err)).SetTextColor(tview.Styles.ContrastSecondaryTextColor))
			})
			return
		}
		var health []domain.AgentHealth
		if probeAgents {
			health, err = c.agentStatus()
			if err != nil {
				setStatusAsync("Agent probe failed: " + err.Error())
			}
		}

		tasks := newestFirst(m.RecentActivity)
		mu.Lock()
		lastTasks = tasks
		if probeAgents {
			lastHealth = health
		}
		health = lastHealth
		if selectedTaskID == "" && len(tasks) > 0 {
			selectedTaskID = tasks[0].ID
		}
		selected := selectedTaskID
		mu.Unlock()

		app.QueueUpdateDraw(func() {
			renderTasksTable(tasksTable, tasks, selected)
			overviewView.SetText(renderOverview(m.Overview))
			agentsView.SetText(renderAgents(m.Agents, health))
		})
		refreshDetailsAsync(selected)
	}

	submitPrompt := func(prompt string) {
		prompt = strings.TrimSpace(prompt)
		if prompt == "" {
			return
		}
		strategy := strategies[strategyIdx.Load()]
		setStatusUI(fmt.Sprintf("Distributing task (%s)...", strategy))
		promptInput.SetText("")
		go func() {
			resp, err := c.distribute(prompt, strategy)
			if err != nil {
				setStatusAsync("Failed to distribute task: " + err.Error())
				return
			}
			mu.Lock()
			selectedTaskID = resp.TaskID
			mu.Unlock()
			refresh(false)
			setStatusAsync(fmt.Sprintf("Task %s finished success=%t rate=%.0f%%",
				shortID(resp.TaskID), resp.Result.Success, resp.Result.SuccessRate*100))
		}()
	}

	promptInput.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		submitPrompt(promptInput.GetText())
	})

	tasksTable.SetSelectedFunc(func(row, _ int) {
		mu.Lock()
		if row <= 0 || row > len(lastTasks) {
			mu.Unlock()
			return
		}
		selectedTaskID = lastTasks[row-1].ID
		selected := selectedTaskID
		mu.Unlock()
		refreshDetailsAsync(selected)
	})

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF10:
			app.Stop()
			return nil
		case tcell.KeyF5:
			go refresh(true)
			setStatusUI("Manual refresh requested")
			return nil
		case tcell.KeyF2:
			next := (strategyIdx.Load() + 1) % int32(len(strategies))
			strategyIdx.Store(next)
			promptInput.SetTitle(promptTitle())
			return nil
		case tcell.KeyCtrlL:
			app.SetFocus(promptInput)
			setStatusUI("Focus -> prompt")
			return nil
		case tcell.KeyCtrlT:
			app.SetFocus(tasksTable)
			setStatusUI("Focus -> tasks")
			return nil
		case tcell.KeyEscape:
			app.SetFocus(tasksTable)
			setStatusUI("Focus -> tasks")
			return nil
		case tcell.KeyTAB:
			if app.GetFocus() == promptInput {
				app.SetFocus(tasksTable)
			} else {
				app.SetFocus(promptInput)
			}
			return nil
		}
		if event.Key() == tcell.KeyRune && app.GetFocus() != promptInput {
			app.SetFocus(promptInput)
		}
		return event
	})

	go c.watch(ctx, func(frame streamFrame) {
		if frame.TaskID == "" {
			return
		}
		refresh(false)
		setStatusAsync(fmt.Sprintf("%s %s", frame.Type, shortID(frame.TaskID)))
	}, func(err error) {
		setStatusAsync("Event stream: " + err.Error())
	})

	go func() {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()

		refresh(true)
		probes := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probes++
				// agent health is slower to change than task history
				refresh(probes%5 == 0)
			}
		}
	}()

	if err := app.SetRoot(root, true).EnableMouse(true).SetFocus(promptInput).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "monitor failed: %v\n", err)
		os.Exit(1)
	}
}
