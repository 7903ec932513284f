// Package internal contains the implementation packages of tessera.
//
// # Package Organization
//
// Rendering core, bottom-up:
//
//   - errors: Structured errors, the error collector and the HTML overlay
//   - logging: Structured logging on log/slog
//   - expression: Expression and statement evaluation against a scope
//   - state: Reactive state with change notification
//   - mustache: Mustache template compilation and rendering
//   - dom: The live element tree, event dispatch and selectors
//   - directive: x-if, x-for, x-show, x-model, bindings and listeners
//   - style: :host rewriting and selector scoping
//   - dataset: Attribute value coercion and data- name mapping
//   - component: Definitions, host elements and the instance lifecycle
//
// Around the core:
//
//   - registry: Defined components, dependency analysis and change events
//   - renderer: Upgrades the custom elements of a page to instances
//   - fetch: Definition documents from files or HTTP with a bbolt cache
//   - scanner: Finds and loads definition documents with a worker pool
//   - watcher: Debounced file watching
//   - server: Preview pages and live websocket sessions
//   - config: Viper-backed configuration with validation
//   - version: Build information
//
// # Inter-Package Communication
//
//   - The registry is the event hub for definition changes
//   - The scanner loads documents through the fetcher into the registry
//   - The watcher triggers rescans of changed files
//   - The server turns registry events into reloads of live sessions
//
// For detailed documentation, see the individual package documentation.
package internal
