package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はワーカーモード（スケジューラ＋保持期間ジョブ）で起動することを示す。
	CommandWorker Command = "worker"
	// CommandScrape はスクレイプを1回だけ実行して終了することを示す。
	CommandScrape Command = "scrape"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "worker":
		return CommandWorker
	case "scrape":
		return CommandScrape
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
