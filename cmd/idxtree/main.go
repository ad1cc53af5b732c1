// Command idxtree creates, fills and inspects idxtree index files.
//
// Usage:
//
//	idxtree -db index.db [-degree 3 -keysize 16 -valsize 64] create
//	idxtree -db index.db put <key> <value>
//	idxtree -db index.db get <key>
//	idxtree -db index.db select <key>
//	idxtree -db index.db dump | check | stats
//	idxtree -db index.db seed [count]
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "idxtree:", err)
		os.Exit(1)
	}
}
