/*
Sctables harvests Google Search Console analytics into Google Sheets, driven
by a Telegram bot.

Once a day, and on demand from the bot menu, it reads a control spreadsheet
listing site URLs with the last processed date, pulls per-day analytics for
every date since, writes the results into new spreadsheets shared with the
configured account, and advances each URL's date in the control spreadsheet.

# Usage

	$ sctables [flags...]

# Environment Variables

The sctables program relies on the following environment variables:

  - TELEGRAM_TOKEN: Telegram bot token for accessing the Telegram Bot API.
  - DATABASE_PATH: path to the SQLite database holding bot state. Defaults
    to sctables.db in the current directory.

Variables are also read from a .env file in the current directory, when
present. The rest of the configuration (service account key, control
spreadsheet URL, share email, run hour) lives in the database and is edited
through the bot.
*/
package main
