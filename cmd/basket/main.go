// basket imports and exports configuration baskets.
//
// Usage:
//
//	basket import [--replace] [--dry-run] [--fail-fast] <file|dir>...
//	basket export <kind> [name]
//	basket period <name> [--at RFC3339] [--check]
//	basket delete <kind> <name>
//	basket field <varname> [--object name] [--value v]
//
// Global flags: --config, --db, --driver (sqlite|badger), --format (text|json),
// --verbose. See internal/config for the config file and BASKET_* variables.
package main

import "github.com/roach88/basket/internal/cli"

func main() {
	cli.Main()
}
