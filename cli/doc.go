// Package cli wires the command-line interface: the cobra root command,
// flag binding into viper, the web server and the headless translate
// command.
package cli
