// Package config loads luadebug settings.
//
// Settings are layered, higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  4. Command Line Flags      │  ← Highest priority (applied by cmd)
//	├─────────────────────────────┤
//	│  3. Environment Variables   │  ← LUADEBUG_*
//	├─────────────────────────────┤
//	│  2. Config File             │  ← ~/.config/luadebug/config.yaml
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │  ← Lowest priority
//	└─────────────────────────────┘
//
// The file is YAML:
//
//	log:
//	  level: debug
//	debugger:
//	  user: alice
//	  stop_on_entry: true
//	  step_over: depth
//	lua:
//	  execution_timeout: 30s
//	dap:
//	  listen: 127.0.0.1:4711
//
// Environment variables name a section and a key, LUADEBUG_LUA_CALL_STACK_SIZE
// sets lua.call_stack_size. A few common settings have short names, see
// EnvMapping.
package config
