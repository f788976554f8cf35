package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/stageline-io/stageline/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "health":
		cmdHealth()
	case "plan":
		cmdPlan(os.Args[2:])
	case "expand":
		cmdExpand(os.Args[2:])
	case "project":
		cmdProject(os.Args[2:])
	case "teams":
		cmdTeams()
	case "projects":
		cmdProjects(os.Args[2:])
	case "sessions":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: stagelinectl sessions <list|show|delete|expand>")
			os.Exit(1)
		}
		switch os.Args[2] {
		case "list":
			cmdSessionsList()
		case "show":
			if len(os.Args) < 4 {
				fmt.Fprintln(os.Stderr, "usage: stagelinectl sessions show <id>")
				os.Exit(1)
			}
			cmdSessionsShow(os.Args[3])
		case "delete":
			if len(os.Args) < 4 {
				fmt.Fprintln(os.Stderr, "usage: stagelinectl sessions delete <id>")
				os.Exit(1)
			}
			cmdSessionsDelete(os.Args[3])
		case "expand":
			if len(os.Args) < 5 {
				fmt.Fprintln(os.Stderr, "usage: stagelinectl sessions expand <id> <stage-id>")
				os.Exit(1)
			}
			cmdSessionsExpand(os.Args[3], os.Args[4])
		default:
			fmt.Fprintf(os.Stderr, "unknown sessions subcommand: %s\n", os.Args[2])
			os.Exit(1)
		}
	case "logs":
		cmdLogs(os.Args[2:])
	case "config":
		if len(os.Args) < 4 || os.Args[2] != "validate" {
			fmt.Fprintln(os.Stderr, "usage: stagelinectl config validate <path>")
			os.Exit(1)
		}
		cmdConfigValidate(os.Args[3])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func cmdHealth() {
	body, err := apiGet("/api/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(body))
}

// cmdPlan sends a project description and prints the raw stage plan.
func cmdPlan(args []string) {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	file := fs.String("file", "", "Read project description from file (default: stdin)")
	fs.Parse(args)

	description := readInput(*file)
	if description == "" {
		fmt.Fprintln(os.Stderr, "error: project description is empty")
		os.Exit(1)
	}

	body, err := apiPost("/api/stages", map[string]any{
		"projectDescription": description,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(body))
}

// cmdExpand generates tickets for one stage of a plan held in local files.
func cmdExpand(args []string) {
	fs := flag.NewFlagSet("expand", flag.ExitOnError)
	file := fs.String("file", "", "Read project description from file (default: stdin)")
	plan := fs.String("plan", "", "Path to stage plan JSON (required)")
	stage := fs.String("stage", "", "Target stage id (required)")
	prior := fs.String("prior", "", "Path to JSON array of previously generated ticket sets")
	fs.Parse(args)

	if *plan == "" || *stage == "" {
		fmt.Fprintln(os.Stderr, "error: --plan and --stage are required")
		os.Exit(1)
	}

	planJSON, err := os.ReadFile(*plan)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	req := map[string]any{
		"projectDescription": readInput(*file),
		"stagesJson":         string(planJSON),
		"targetStage":        *stage,
	}
	if *prior != "" {
		priorJSON, err := os.ReadFile(*prior)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		var sets []json.RawMessage
		if err := json.Unmarshal(priorJSON, &sets); err != nil {
			fmt.Fprintf(os.Stderr, "error: prior ticket sets: %v\n", err)
			os.Exit(1)
		}
		req["previousStagesTickets"] = sets
	}

	body, err := apiPost("/api/tickets", req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(body))
}

// cmdProject submits a ticket set file to the tracker.
func cmdProject(args []string) {
	fs := flag.NewFlagSet("project", flag.ExitOnError)
	file := fs.String("file", "", "Path to ticket set JSON (required)")
	team := fs.String("team", "", "Tracker team id (default: daemon config)")
	proj := fs.String("project", "", "Tracker project id")
	fs.Parse(args)

	if *file == "" {
		fmt.Fprintln(os.Stderr, "error: --file is required")
		os.Exit(1)
	}
	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	var set struct {
		Tickets []json.RawMessage `json:"tickets"`
	}
	if err := json.Unmarshal(data, &set); err != nil {
		fmt.Fprintf(os.Stderr, "error: ticket set: %v\n", err)
		os.Exit(1)
	}

	body, err := apiPost("/api/tracker/issues", map[string]any{
		"tickets":   set.Tickets,
		"teamId":    *team,
		"projectId": *proj,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(body))
}

func cmdTeams() {
	body, err := apiGet("/api/tracker/teams")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	var teams []map[string]any
	json.Unmarshal(body, &teams)
	for _, t := range teams {
		fmt.Printf("%-40s %-6s %s\n", t["id"], t["key"], t["name"])
	}
}

func cmdProjects(args []string) {
	fs := flag.NewFlagSet("projects", flag.ExitOnError)
	team := fs.String("team", "", "Filter by team id")
	fs.Parse(args)

	path := "/api/tracker/projects"
	if *team != "" {
		path += "?teamId=" + *team
	}
	body, err := apiGet(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	var projects []map[string]any
	json.Unmarshal(body, &projects)
	for _, p := range projects {
		fmt.Printf("%-40s %s\n", p["id"], p["name"])
	}
}

func cmdSessionsList() {
	body, err := apiGet("/api/sessions")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	var sessions []map[string]any
	json.Unmarshal(body, &sessions)
	for _, s := range sessions {
		desc, _ := s["projectDescription"].(string)
		if len(desc) > 60 {
			desc = desc[:57] + "..."
		}
		fmt.Printf("%-38s %-22s %s\n", s["id"], s["updatedAt"], desc)
	}
}

func cmdSessionsShow(id string) {
	body, err := apiGet("/api/sessions/" + id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(body))
}

func cmdSessionsDelete(id string) {
	if _, err := apiDo("DELETE", "/api/sessions/"+id, nil); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("deleted")
}

func cmdSessionsExpand(id, stage string) {
	body, err := apiPost(fmt.Sprintf("/api/sessions/%s/tickets/%s", id, stage), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(body))
}

func cmdLogs(args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	level := fs.String("level", "", "Minimum level (debug|info|warn|error)")
	limit := fs.Int("limit", 100, "Max entries")
	fs.Parse(args)

	path := fmt.Sprintf("/api/logs?limit=%d", *limit)
	if *level != "" {
		path += "&level=" + *level
	}
	body, err := apiGet(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	var entries []map[string]any
	json.Unmarshal(body, &entries)
	for _, e := range entries {
		fmt.Printf("%-25s %-5s %s\n", e["time"], e["level"], e["message"])
	}
}

func cmdConfigValidate(path string) {
	_, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("config is valid")
}

// --- Helpers ---

func readInput(file string) string {
	var data []byte
	var err error
	if file != "" {
		data, err = os.ReadFile(file)
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	return string(bytes.TrimSpace(data))
}

func apiGet(path string) ([]byte, error) {
	return apiDo("GET", path, nil)
}

func apiPost(path string, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return apiDo("POST", path, body)
}

func apiDo(method, path string, payload []byte) ([]byte, error) {
	base := envOr("STAGELINE_API_URL", "http://localhost:8080")
	req, err := http.NewRequest(method, base+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := os.Getenv("STAGELINE_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func prettyJSON(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return string(out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printUsage() {
	fmt.Println("stagelinectl — staged planning CLI")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  health                          Check daemon health")
	fmt.Println("  plan [--file p]                 Generate a stage plan from a description")
	fmt.Println("  expand --plan p --stage id      Generate tickets for one stage")
	fmt.Println("  project --file p [--team id]    Submit a ticket set to the tracker")
	fmt.Println("  teams                           List tracker teams")
	fmt.Println("  projects [--team id]            List tracker projects")
	fmt.Println("  sessions list                   List sessions")
	fmt.Println("  sessions show <id>              Show session details")
	fmt.Println("  sessions delete <id>            Delete a session")
	fmt.Println("  sessions expand <id> <stage>    Expand a stage within a session")
	fmt.Println("  logs [--level l] [--limit n]    Show recent daemon logs")
	fmt.Println("  config validate <path>          Validate a config file")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  STAGELINE_API_URL   Daemon URL (default: http://localhost:8080)")
	fmt.Println("  STAGELINE_API_KEY   API key for authentication")
}
