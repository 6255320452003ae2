package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"phishguard/ml"
)

// predict_url scores urls offline against a saved artifact and prints one
// JSON result per line. With no arguments it reads urls from stdin.
func main() {
	modelDir := flag.String("model_dir", "models", "artifact directory")
	flag.Parse()

	ictx, err := ml.LoadInferenceContext(*modelDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\nrun train_model first\n", err)
		os.Exit(1)
	}

	urls := flag.Args()
	if len(urls) == 0 {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				urls = append(urls, line)
			}
		}
		if err := scanner.Err(); err != nil {
			fmt.Fprintf(os.Stderr, "read stdin: %v\n", err)
			os.Exit(1)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	failed := false
	for _, url := range urls {
		result, err := ml.Predict(ictx, url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%q: %v\n", url, err)
			failed = true
			continue
		}
		enc.Encode(result)
	}
	if failed {
		os.Exit(2)
	}
}
