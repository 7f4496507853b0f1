//go:build !tray

package tray

import "fmt"

func Run(app *App) int {
	fmt.Println("tokentorch: tray mode not available in this build")
	fmt.Println("rebuild with: go build -tags tray ./cmd/tokentorch")
	return 1
}
