// ./main.go
package main

import (
	"github.com/xkilldash9x/chatbridge/cmd"
)

func main() {
	cmd.Execute()
}
