/*
Package config loads AeroSuite configuration from an optional YAML file and
the process environment. Environment variables always win over file values.
*/
package config
