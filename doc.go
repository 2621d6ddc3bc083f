// Package rescore 是一个二排（second-pass rescoring）引擎。
//
// 设计要点：
// - Pipeline-first: 一排召回、二排重打分、截断都是 Node，按 Recall → ReRank → PostProcess 串联
// - Sparse merge: 模型的每个特征是一个稀疏的文档迭代器，二排用最小堆合并，只计算真正命中的特征
// - 可观测: 特征向量可写入 Store（内存 / Redis），debug 输出每个特征的耗时与命中数
package rescore

import "github.com/rushteam/rescore/pipeline"

// 轻量 facade：便于直接 import "rescore" 使用核心抽象。
type Pipeline = pipeline.Pipeline
type Node = pipeline.Node
type Kind = pipeline.Kind

const (
	KindRecall      = pipeline.KindRecall
	KindReRank      = pipeline.KindReRank
	KindPostProcess = pipeline.KindPostProcess
)
