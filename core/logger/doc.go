// Package logger is a standardized event logging framework for the shell.
//
// Events are protobuf Struct messages written one per line in their JSON
// form.
package logger
