// Package notifications delivers workflow events to interested observers.
//
// Components publish through the small Service interface. The daemon wires an
// in-memory EventBus (polled by CLI and GUI clients over IPC) together with an
// ntfy notifier when a topic is configured; both sit behind Multi so workflow
// code never knows who is listening. Delivery failures never affect task
// state.
package notifications
