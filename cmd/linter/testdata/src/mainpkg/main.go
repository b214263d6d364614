package main

import (
	"log"
	"os"
)

type server struct{}

// Метод main у типа не считается main.main.
func (server) main() {
	os.Exit(2) // want "call to log.Fatal or os.Exit outside main.main"
}

func helper() {
	log.Fatalf("%s", "boom") // want "call to log.Fatal or os.Exit outside main.main"
}

func main() {
	if len(os.Args) > 3 {
		panic("bad args") // want "use of builtin panic is discouraged"
	}
	helper()
	log.Fatal("в main.main разрешено")
	os.Exit(1)
}
