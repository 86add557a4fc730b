package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultURL = "http://127.0.0.1:8080"

type adminClient struct {
	base string
	http *http.Client
}

func newAdminClient(base string, timeout time.Duration) *adminClient {
	return &adminClient{
		base: strings.TrimRight(strings.TrimSpace(base), "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// do sends body (JSON encoded when non-nil) and returns the status and the
// raw response.
func (c *adminClient) do(method, path string, body any) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	return resp.StatusCode, b, err
}

// run performs the request, prints the response and exits non-zero on
// failure.
func (c *adminClient) run(method, path string, body any) {
	status, b, err := c.do(method, path, body)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	fmt.Println(strings.TrimSpace(string(b)))
	if status/100 != 2 {
		os.Exit(1)
	}
}

func urlFlag(fs *flag.FlagSet) *string {
	return fs.String("url", defaultURL, "server base url")
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := urlFlag(fs)
	_ = fs.Parse(args)
	newAdminClient(*baseURL, 5*time.Second).run(http.MethodGet, "/admin/v1/state", nil)
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := urlFlag(fs)
	_ = fs.Parse(args)
	newAdminClient(*baseURL, 10*time.Second).run(http.MethodPost, "/admin/v1/snapshot", nil)
}

func reloadCmd(args []string) {
	fs := flag.NewFlagSet("reload", flag.ExitOnError)
	baseURL := urlFlag(fs)
	_ = fs.Parse(args)
	newAdminClient(*baseURL, 10*time.Second).run(http.MethodPost, "/admin/v1/reload", nil)
}

func cancelCmd(args []string) {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	baseURL := urlFlag(fs)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		usageExit("cancel <job-id>")
	}
	newAdminClient(*baseURL, 5*time.Second).run(http.MethodPost, "/admin/v1/jobs/cancel", map[string]string{"id": fs.Arg(0)})
}

func dungenCmd(args []string) {
	fs := flag.NewFlagSet("dungen", flag.ExitOnError)
	baseURL := urlFlag(fs)
	mapID := fs.String("map", "", "target map id")
	pos := fs.String("pos", "0,0", "position x,y")
	seed := fs.String("seed", "", "seed (default: server default seed)")
	wait := fs.Bool("wait", false, "wait for the job and print its summary")
	_ = fs.Parse(args)
	if fs.NArg() != 1 || *mapID == "" {
		usageExit("dungen -map <map> [-pos x,y] [-seed n] [-wait] <config>")
	}
	xy, err := parseVec2(*pos)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -pos:", err)
		os.Exit(2)
	}
	body := map[string]any{"config": fs.Arg(0), "map": *mapID, "x": xy[0], "y": xy[1], "wait": *wait}
	if *seed != "" {
		n, err := parseInt64(*seed)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -seed:", err)
			os.Exit(2)
		}
		body["seed"] = n
	}
	timeout := 10 * time.Second
	if *wait {
		timeout = 3 * time.Minute
	}
	newAdminClient(*baseURL, timeout).run(http.MethodPost, "/admin/v1/dungeon", body)
}

func mapCmd(args []string) {
	if len(args) < 1 || (args[0] != "create" && args[0] != "delete") {
		usageExit("map create|delete [-url u] <id>")
	}
	action := args[0]
	fs := flag.NewFlagSet("map "+action, flag.ExitOnError)
	baseURL := urlFlag(fs)
	_ = fs.Parse(args[1:])
	if fs.NArg() != 1 {
		usageExit("map " + action + " <id>")
	}
	newAdminClient(*baseURL, 5*time.Second).run(http.MethodPost, "/admin/v1/maps", map[string]string{"action": action, "id": fs.Arg(0)})
}

func biomeCmd(args []string) {
	if len(args) < 1 {
		usageExit("biome add|addlayer|rmlayer|preload|disable ...")
	}
	sub := args[0]
	fs := flag.NewFlagSet("biome "+sub, flag.ExitOnError)
	baseURL := urlFlag(fs)
	mapID := fs.String("map", "", "map id")

	var build func() (string, any)
	switch sub {
	case "add":
		seed := fs.String("seed", "", "biome seed (default: server default seed)")
		build = func() (string, any) {
			if fs.NArg() != 1 {
				usageExit("biome add -map <map> [-seed n] <biome>")
			}
			body := map[string]any{"map": *mapID, "biome": fs.Arg(0)}
			if *seed != "" {
				n, err := parseInt64(*seed)
				if err != nil {
					fmt.Fprintln(os.Stderr, "bad -seed:", err)
					os.Exit(2)
				}
				body["seed"] = n
			}
			return "/admin/v1/biome/add", body
		}
	case "addlayer":
		chunk := fs.Int("chunk", 16, "chunk size in tiles")
		deps := fs.String("depends", "", "comma separated layer ids")
		cfg := fs.String("config", "", "dungeon config per chunk")
		tmpl := fs.String("template", "", "biome template")
		canUnload := fs.Bool("unload", true, "chunks may unload")
		build = func() (string, any) {
			if fs.NArg() != 1 {
				usageExit("biome addlayer -map <map> (-config c | -template t) [-chunk n] [-depends a,b] <layer>")
			}
			body := map[string]any{
				"map": *mapID, "id": fs.Arg(0), "chunk_size": *chunk,
				"config": *cfg, "template": *tmpl, "can_unload": *canUnload,
			}
			if *deps != "" {
				body["depends_on"] = strings.Split(*deps, ",")
			}
			return "/admin/v1/biome/addlayer", body
		}
	case "rmlayer":
		build = func() (string, any) {
			if fs.NArg() != 1 {
				usageExit("biome rmlayer -map <map> <layer>")
			}
			return "/admin/v1/biome/rmlayer", map[string]string{"map": *mapID, "layer": fs.Arg(0)}
		}
	case "preload":
		build = func() (string, any) {
			if fs.NArg() != 1 {
				usageExit("biome preload -map <map> x1,y1:x2,y2")
			}
			lo, hi, err := parseBox(fs.Arg(0))
			if err != nil {
				fmt.Fprintln(os.Stderr, "bad box:", err)
				os.Exit(2)
			}
			return "/admin/v1/biome/preload", map[string]any{"map": *mapID, "min": lo, "max": hi}
		}
	case "disable":
		build = func() (string, any) { return "/admin/v1/biome/disable", map[string]string{"map": *mapID} }
	default:
		usageExit("biome add|addlayer|rmlayer|preload|disable ...")
	}
	_ = fs.Parse(args[1:])
	if *mapID == "" {
		usageExit("biome " + sub + ": -map is required")
	}
	path, body := build()
	newAdminClient(*baseURL, 10*time.Second).run(http.MethodPost, path, body)
}
