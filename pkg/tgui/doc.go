// Package tgui provides small Telegram UI helpers:
//   - Inline keyboard builders
//   - Callback data helpers (<action>_<id>)
//   - An HTML message builder with escaping by default
//   - Pagination of rendered blocks into Telegram-sized messages
package tgui
