// Package coalescer はデバイス登録要求をまとめて外部の一括登録APIに送信する。
//
// 個々の呼び出し元はRegisterで1件ずつ登録を要求し、Futureで結果を待つ。
// 同じKey（サンドボックスかどうかとアプリケーション識別子の組）への要求は
// 最大100件のウィンドウにまとめられ、1回の一括呼び出しで処理される。
//
// Keyごとに実行中のウィンドウは常に高々1つで、ウィンドウは作成順に実行される。
// 異なるKeyのウィンドウは互いに待ち合わせない。
//
// 一括呼び出しの結果は項目ごとに振り分けられる。通信エラーと全体エラーは
// ウィンドウ内のすべての項目に、項目ごとのエラーはその項目だけに届く。
// 失敗した項目の再試行は行わない。
package coalescer
