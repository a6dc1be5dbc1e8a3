package main

import (
	"embed"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"chat-renderer/internal/config"
	"chat-renderer/internal/logger"
	"chat-renderer/internal/markdown"
	"chat-renderer/internal/pipeline"
)

//go:embed all:frontend/dist
var assets embed.FS

// Command line flags
var (
	inputFlag  = flag.String("input", "", "Markdown file to render ('-' reads stdin)")
	outputFlag = flag.String("output", "", "Write rendered HTML to this file instead of stdout")
	cliFlag    = flag.Bool("cli", false, "Run in CLI mode without GUI")
)

// printHelp displays the help information for command line usage.
func printHelp() {
	fmt.Println("chat-renderer - render chat messages with Markdown, math and citations to safe HTML")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  chat-renderer [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --input <PATH>   Markdown file to render ('-' reads stdin)")
	fmt.Println("  --output <PATH>  Write rendered HTML to this file instead of stdout")
	fmt.Println("  --cli            Command line mode (no GUI)")
	fmt.Println("  -h, --help       Show this help")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  chat-renderer                         # start the GUI")
	fmt.Println("  chat-renderer --cli --input msg.md    # render one file to stdout")
	fmt.Println("  cat msg.md | chat-renderer --cli --input -")
}

func main() {
	flag.Usage = printHelp
	flag.Parse()

	if err := logger.Init(&logger.Config{
		LogFilePath: "chat-renderer.log",
		Level:       logger.LevelInfo,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
	}
	defer logger.Close()

	if *cliFlag || *inputFlag != "" {
		runRenderCLI(*inputFlag, *outputFlag)
		return
	}

	app := NewApp()
	app.SetWailsRuntime(true)

	err := wails.Run(&options.App{
		Title:  "Chat Renderer",
		Width:  1024,
		Height: 768,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		BackgroundColour: &options.RGBA{R: 255, G: 255, B: 255, A: 1},
		OnStartup:        app.startup,
		OnShutdown:       app.shutdown,
		Bind: []interface{}{
			app,
		},
	})
	if err != nil {
		logger.Error("wails run failed", err)
	}
}

// runRenderCLI renders one message from a file or stdin and prints the HTML.
func runRenderCLI(input, output string) {
	if input == "" {
		fmt.Fprintln(os.Stderr, "error: --cli requires --input")
		printHelp()
		os.Exit(1)
	}

	var (
		data []byte
		err  error
	)
	if input == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(input)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to read input: %v\n", err)
		os.Exit(1)
	}

	cfgMgr, err := config.NewManager("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := cfgMgr.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg := cfgMgr.GetConfig()

	converter := markdown.NewConverter(markdown.Options{
		HighlightStyle: cfg.HighlightStyle,
		HardWraps:      cfg.HardWraps,
		Sanitize:       cfg.Sanitize,
	})
	result, err := pipeline.New(converter).Run(string(data))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: render failed: %v\n", err)
		os.Exit(1)
	}

	if output != "" {
		if err := os.WriteFile(output, []byte(result.HTML), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "error: failed to write output: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("rendered %d bytes to %s (code blocks: %d, math spans: %d, citations: %d)\n",
			len(result.HTML), output, result.CodeBlocks, result.MathSpans, result.Citations)
		return
	}
	fmt.Println(result.HTML)
}
